// Package longpoll implements a sequenced notification channel for long-poll
// clients.
//
// Every published notification gets a sequence number from a bounded ring.
// A background aggregator folds notifications, in order, into a full update
// that describes the complete current state. A client reports the last
// sequence it received and NotificationsSince answers with one of:
//
//   - nothing, when the client is up to date;
//   - the notifications it missed, when they are still in the ring;
//   - the full update, when it fell more than MaxUpdatesToSend behind.
//
// Clients that are up to date park with NotifyOnNext or WaitForNext and are
// woken when the next sequence becomes visible.
//
// Two payload capabilities are supported. A Manager merges opaque payloads, so
// catch-up ranges come back as one merged value:
//
//	ch, err := longpoll.NewCombining[*Doc](docManager{}, longpoll.Config{
//		Capacity:         1024,
//		MaxUpdatesToSend: 512,
//	}, longpoll.WithLogger(log))
//	if err != nil {
//		return err
//	}
//	g.Go(ch.Run(ctx))
//
//	seq, err := ch.Publish(ctx, delta)
//
// Sequenced payloads embed BaseNotification and are delivered verbatim; a
// FullUpdateBuilder maintains the full update for NewSequenced channels.
//
// # Visibility
//
// By default a sequence becomes visible only after the aggregator folded it,
// so a client can always switch from notifications to the full update without
// losing state. WithPublishedVisibility exposes sequences as soon as they are
// published; a full update then reports the aggregator sequence, which can
// trail the cursor.
//
// # Shutdown
//
// Shutdown alerts every blocked producer and releases every pending wait with
// ErrCancelled. Publishing afterwards fails with ErrClosed.
package longpoll
