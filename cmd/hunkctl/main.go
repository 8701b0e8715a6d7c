// Command hunkctl reserves a hunk arena, runs allocation workloads against it
// and prints memory reports.
package main

func main() {
	execute()
}
