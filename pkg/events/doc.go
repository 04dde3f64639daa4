/*
Package events provides an in-process publish/subscribe broker for deploy
progress.

The deploy controller publishes one event per state transition and per
resource it creates, destroys or leaves orphaned. The CLI subscribes to
print progress while a deploy runs. Delivery is best-effort: a subscriber
whose buffer is full misses events rather than slowing the deploy down.

	broker := events.NewBroker()
	broker.Start()
	sub := broker.Subscribe()

	go func() {
		for ev := range sub {
			fmt.Println(ev.Type, ev.Message)
		}
	}()

	// ... run the deploy with deploy.WithEvents(broker) ...

	broker.Stop()           // flushes pending events
	broker.Unsubscribe(sub) // closes sub, ending the loop above

A nil *Broker accepts and drops every event, so publishers never need to
check whether anyone is listening.
*/
package events
