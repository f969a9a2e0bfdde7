package main

// The API serves the SCORM runtime: the RTE bridge content talks to and the progress reads of the LMS.
// Dependencies are wired by the dig container in di/dig.
func main() {
	startWithDig()
}
