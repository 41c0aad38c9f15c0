// package notify pushes job completion notifications to connected websocket clients.
//
// A [Hub] tracks the clients of each owner on one instance. A [Notifier] decides
// how a notification reaches the hubs: directly in process, or through a redis
// pub/sub channel that every instance subscribes to. Each owner also has a short
// inbox of recent notifications so a client that was offline can catch up.
package notify
