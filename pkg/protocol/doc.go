// ABOUTME: Timeline feed wire protocol package
// ABOUTME: Defines feed messages and the WebSocket client
// Package protocol implements the timeline feed wire protocol.
//
// Every frame is a JSON Message with a type and payload. After the
// client/hello and server/hello handshake the server sends server:ready
// with the full timeline, then one message per committed edit.
//
// Example:
//
//	c := protocol.NewClient(protocol.Config{URL: "ws://host:8930/timeline", ClientID: id, Name: "studio"})
//	if err := c.Connect(ctx); err != nil {
//		return err
//	}
//	for env := range c.Messages {
//		// handle env.Type
//	}
package protocol
