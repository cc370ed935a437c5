package sync

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testS3Client(serverURL string) *S3Client {
	return NewS3Client(&S3Config{
		Endpoint:       serverURL,
		BucketName:     "fieldsync-photos",
		AccessKey:      "test-access-key",
		SecretKey:      "test-secret-key",
		Region:         "us-east-1",
		ForcePathStyle: true,
	})
}

func TestS3Client_Upload(t *testing.T) {
	var gotMethod, gotPath, gotContentType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := testS3Client(srv.URL)
	err := client.Upload(context.Background(), "inspections/i1/photos/p1", []byte("payload"), "image/jpeg")
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if gotMethod != http.MethodPut {
		t.Errorf("method = %s, want PUT", gotMethod)
	}
	if gotPath != "/fieldsync-photos/inspections/i1/photos/p1" {
		t.Errorf("path = %s, want bucket-prefixed object key", gotPath)
	}
	if gotContentType != "image/jpeg" {
		t.Errorf("content type = %q, want image/jpeg", gotContentType)
	}
	if gotBody != "payload" {
		t.Errorf("body = %q, want payload forwarded verbatim", gotBody)
	}
}

func TestS3Client_UploadSignsRequest(t *testing.T) {
	var auth, amzDate, contentSHA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		amzDate = r.Header.Get("X-Amz-Date")
		contentSHA = r.Header.Get("X-Amz-Content-Sha256")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := testS3Client(srv.URL)
	if err := client.Upload(context.Background(), "key", []byte("x"), ""); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if !strings.HasPrefix(auth, "AWS4-HMAC-SHA256 Credential=test-access-key/") {
		t.Errorf("Authorization = %q, want SigV4 credential scope", auth)
	}
	if !strings.Contains(auth, "/us-east-1/s3/aws4_request") {
		t.Errorf("Authorization = %q, want region/service scope", auth)
	}
	if !strings.Contains(auth, "SignedHeaders=host;x-amz-date") {
		t.Errorf("Authorization = %q, want signed header list", auth)
	}
	if !strings.Contains(auth, "Signature=") {
		t.Errorf("Authorization = %q, want a signature", auth)
	}
	if len(amzDate) != len("20060102T150405Z") {
		t.Errorf("X-Amz-Date = %q, want basic ISO 8601 timestamp", amzDate)
	}
	if contentSHA != "UNSIGNED-PAYLOAD" {
		t.Errorf("X-Amz-Content-Sha256 = %q, want UNSIGNED-PAYLOAD", contentSHA)
	}
}

func TestS3Client_UploadErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("AccessDenied"))
	}))
	defer srv.Close()

	client := testS3Client(srv.URL)
	err := client.Upload(context.Background(), "key", []byte("x"), "")
	if err == nil {
		t.Fatal("Upload should fail on a non-200 response")
	}
	if !strings.Contains(err.Error(), "403") {
		t.Errorf("error = %v, want it to carry the status", err)
	}
}

func TestS3Client_List(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult>
  <Name>fieldsync-photos</Name>
  <Prefix>inspections/i1/photos/p1</Prefix>
  <Contents><Key>inspections/i1/photos/p1</Key><Size>42</Size></Contents>
  <Contents><Key>inspections/i1/photos/p1.thumb.jpg</Key><Size>7</Size></Contents>
  <Contents><Key>inspections/i1/photos/p1.json</Key><Size>3</Size></Contents>
</ListBucketResult>`))
	}))
	defer srv.Close()

	client := testS3Client(srv.URL)
	keys, err := client.List(context.Background(), "inspections/i1/photos/p1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if gotPath != "/fieldsync-photos/" {
		t.Errorf("path = %s, want the bucket root", gotPath)
	}
	if !strings.Contains(gotQuery, "list-type=2") || !strings.Contains(gotQuery, "prefix=") {
		t.Errorf("query = %q, want ListObjectsV2 parameters", gotQuery)
	}
	if len(keys) != 3 {
		t.Fatalf("got %d keys, want 3", len(keys))
	}
	if keys[0] != "inspections/i1/photos/p1" {
		t.Errorf("keys[0] = %s", keys[0])
	}
}

func TestS3Client_Delete(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := testS3Client(srv.URL)
	if err := client.Delete(context.Background(), "inspections/i1/photos/p1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if gotMethod != http.MethodDelete {
		t.Errorf("method = %s, want DELETE", gotMethod)
	}
	if gotPath != "/fieldsync-photos/inspections/i1/photos/p1" {
		t.Errorf("path = %s, want bucket-prefixed object key", gotPath)
	}
}

func TestS3Client_DeleteErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := testS3Client(srv.URL)
	if err := client.Delete(context.Background(), "key"); err == nil {
		t.Fatal("Delete should fail on an error response")
	}
}

func TestS3Client_TestConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`<?xml version="1.0"?><ListBucketResult></ListBucketResult>`))
	}))
	defer srv.Close()

	if err := testS3Client(srv.URL).TestConnection(context.Background()); err != nil {
		t.Errorf("TestConnection against a live bucket failed: %v", err)
	}

	srv.Close()
	if err := testS3Client(srv.URL).TestConnection(context.Background()); err == nil {
		t.Error("TestConnection against a dead endpoint should fail")
	}
}
