// Package queue provides Redis-based work queue primitives for distributed triage.
//
// The queue package decouples the audit engine from the triage workers. The
// engine pushes one work item per candidate onto a shared request list,
// workers pop and triage them, and verdicts flow back through a per-stream
// pub/sub channel.
//
// # Core Components
//
// Client: Interface for interacting with the Redis queue. Provides methods for:
//   - Push/Pop operations on the request list
//   - Publish/Subscribe for verdict delivery
//   - Worker registration, discovery and heartbeat
//
// WorkItem: One candidate finding plus the stream it belongs to and the
// project metadata the worker needs.
//
// Result: The outcome of triaging a WorkItem, carrying the verdict as JSON
// or an error.
//
// WorkerMeta: Metadata about a registered triage worker.
//
// # Redis Key Schema
//
// All keys share a configurable prefix (default "aviator"):
//   - <prefix>:requests - List for work items (LPUSH/BRPOP)
//   - <prefix>:results:<streamID> - Pub/Sub channel for verdicts of one stream
//   - <prefix>:worker:<id>:meta - Hash for worker metadata
//   - <prefix>:worker:<id>:health - String with 30s TTL for heartbeat
//   - <prefix>:workers - Set of all registered worker ids
//
// # Usage
//
// Creating a queue client:
//
//	client, err := queue.NewRedisClient(queue.RedisOptions{
//		URL:    "redis://localhost:6379",
//		Prefix: "aviator",
//	})
//
// Pushing work:
//
//	err := client.Push(ctx, queue.WorkItem{
//		StreamID:      streamID,
//		RequestID:     requestID,
//		Index:         0,
//		Total:         1,
//		CandidateJSON: `{"instance_id":"ABC"}`,
//		SubmittedAt:   time.Now().UnixMilli(),
//	})
//
// Collecting verdicts for a stream:
//
//	results, err := client.Subscribe(ctx, streamID)
//	for r := range results {
//		// decode r.VerdictJSON
//	}
//
// A worker loop:
//
//	for {
//		item, err := client.Pop(ctx, 5*time.Second)
//		if err != nil || item == nil {
//			continue
//		}
//		// triage item, then
//		_ = client.Publish(ctx, queue.Result{StreamID: item.StreamID, ...})
//	}
package queue
