package engine

import "context"

// CheckReferences is the public embedder entry point (§6.4): it spawns a
// Pool sized to the batch, submits every reference, and waits for all
// results. The returned slice preserves the order of refs — element i
// corresponds to refs[i] — even though drainers and coordinators complete in
// arbitrary order.
func CheckReferences(ctx context.Context, refs []Reference, cfg Config, progress ProgressFunc) ([]ValidationResult, error) {
	total := len(refs)
	pool := NewPool(ctx, &cfg, progress, total)

	replies := make([]<-chan ValidationResult, total)
	for i, ref := range refs {
		replies[i] = pool.Submit(ref, i, total)
	}

	results := make([]ValidationResult, total)
	for i, reply := range replies {
		select {
		case result, ok := <-reply:
			if ok {
				results[i] = result
			}
		case <-ctx.Done():
			pool.Shutdown()
			return results, ctx.Err()
		}
	}
	pool.Shutdown()
	return results, nil
}
