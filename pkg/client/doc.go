/*
Package client is a small Go client for the Mosquitto Manager HTTP API.

The manager holds an exclusive lock on its document database while it runs,
so command line tools never open the store themselves. They go through the
API of the running process instead:

	c := client.NewClient("127.0.0.1:3000", "admin", "secret")
	doc, err := c.GetState(ctx)
	result, err := c.Apply(ctx)

Every method takes a context. Non-2xx answers are returned as *APIError
carrying the status code and the error message of the response envelope.
Apply returns the partial pipeline result alongside the error when the
pipeline fails, so callers can print which steps ran.
*/
package client
