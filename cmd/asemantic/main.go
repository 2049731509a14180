// Command asemantic demonstrates the asemantic fragment validation
// protocol: provisioning material generation, a self-contained
// end-to-end demo, and file-backed send/recv drivers.
package main

func main() {
	execute()
}
