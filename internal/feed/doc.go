// Package feed is the realtime notification feed client.
//
// An Adapter keeps one websocket to the dashboard backend open while a user
// is logged in. Inbound frames are decoded into a closed set of Frame types;
// notification and system_message frames become candidates for the store.
// Outbound frames are ping, mark_read, get_status and the initial auth.
//
// Connection state is an explicit machine:
//
//	disconnected -> connecting -> connected
//	connecting|connected --abnormal close--> backoff -> connecting
//	backoff --budget spent--> disconnected (exhausted)
//	any --Disconnect--> disconnected
//
// There is at most one reconnect timer. Arming a new one always stops the
// old one first, and Disconnect stops it.
package feed
