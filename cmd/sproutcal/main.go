// Command sproutcal schedules children's recurring activities and serves
// the resolved calendar over HTTP.
package main

func main() {
	execute()
}
