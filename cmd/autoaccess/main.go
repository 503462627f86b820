// Command autoaccess runs the macro automation service and its offline tools.
package main

func main() {
	Execute()
}
