// Package llm is the gateway to the language model used for transaction
// refinement. It runs in one of three modes (demo, stub, live), retries live
// calls with linear backoff, and appends a cost record for every call.
package llm
