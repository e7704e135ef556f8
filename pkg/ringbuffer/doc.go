// Package ringbuffer provides a bounded, multi-producer ring of sequenced
// values with consumer-gated overwrites.
//
// Producers claim strictly increasing sequence numbers with Next, write the
// value with Publish and the ring advances its cursor over every contiguous
// run of published sequences. A claim is only granted once the slot it maps to
// has been released by every gating sequence (usually the sequence of a
// BatchProcessor), so unread slots are never overwritten. Producers that find
// the ring full park on a Barrier instead of spinning or dropping data.
//
// Basic usage:
//
//	alerter := ringbuffer.NewAlerter()
//	ring, err := ringbuffer.New[string](1024, alerter)
//	if err != nil {
//		return err
//	}
//
//	processor := ringbuffer.NewBatchProcessor(ring, ringbuffer.HandlerFunc[string](
//		func(value string, seq int64, endOfBatch bool) {
//			fmt.Println(seq, value)
//		},
//	))
//	ring.SetGatingSequences(processor.Sequence())
//	go processor.Run(ctx)
//
//	seq, err := ring.Next(ctx)
//	if err != nil {
//		return err
//	}
//	ring.Publish(seq, "hello")
//
//	// Shutdown wakes every parked producer and stops the processor.
//	alerter.Alert()
//
// # Waiting
//
// Sequence values wake their waiters by closing a channel that is only
// allocated when somebody waits, so publishing with no waiters does not
// allocate. Barrier.WaitFor re-checks its condition after every wakeup and
// reports ErrAlerted once the shared Alerter fires.
package ringbuffer
