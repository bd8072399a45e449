/*
Package event fans chat updates out to observers outside the request that
produced them.

The bus is built on watermill. In a single process it uses the gochannel
pub/sub; when a Redis address is configured it uses Redis Streams so that
observers connected to another replica see the same updates. Subscribers
run in fan-out mode: every subscriber receives every event published after
it subscribed, and nothing published earlier.

Usage:

	bus := event.NewBus()
	defer bus.Close()

	events, err := bus.Subscribe(ctx, chatID)
	...
	bus.Publish(event.Event{Type: event.ChatUpdated, Update: u})
*/
package event
