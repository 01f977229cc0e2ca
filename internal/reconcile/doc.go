// Package reconcile implements the relayer's reconciliation engine: the window
// scanner that turns chain events into stored requests, the pipeline that
// compares each stored request with its live on-chain counterpart and sends the
// one corrective action it needs, and the aggregator that summarizes a run.
package reconcile
