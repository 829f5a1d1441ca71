// Command extauth verifies credentials against a go-extauth configuration and
// runs a demo server protected by it.
package main

func main() {
	Execute()
}
