package messages

import (
	"log"
	"time"
)

// LogRequest logs an outbound fetch being made.
func LogRequest(component, method, url string) {
	log.Printf("[%s] %s %s", component, method, url)
}

// LogResponse logs a fetch response received.
func LogResponse(component string, statusCode int, duration time.Duration, size int) {
	log.Printf("[%s] response status=%d duration=%dms bytes=%d",
		component, statusCode, duration.Milliseconds(), size)
}

// LogError logs an error from an operation.
func LogError(component, operation string, err error) {
	log.Printf("[%s] %s error: %v", component, operation, err)
}

// LogStep logs a pipeline step starting.
func LogStep(component, step string) {
	log.Printf("[%s] %s", component, step)
}

// LogRows logs a row-level operation on a dataset.
func LogRows(component, operation, dataset string, count int, duration time.Duration) {
	log.Printf("[%s] %s %s: %d rows in %dms",
		component, operation, dataset, count, duration.Milliseconds())
}
