// FieldSync is the offline-first sync agent for field inspection clients.
// It keeps a durable local queue of mutations and photos, and drains it
// against the backend whenever connectivity allows.
package main

func main() {
	Execute()
}
