package telemetry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

var defaultRegistry = newRegistry()

var durationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

type registry struct {
	mu                  sync.Mutex
	toolCalls           map[string]map[string]int64
	toolDurationBuckets map[string][]int64
	rpcRequests         map[string]int64
	rpcErrors           map[int]int64
	sheetsAPIErrors     map[string]map[int]int64
	auditWriteFailures  int64
}

func newRegistry() *registry {
	return &registry{
		toolCalls:           make(map[string]map[string]int64),
		toolDurationBuckets: make(map[string][]int64),
		rpcRequests:         make(map[string]int64),
		rpcErrors:           make(map[int]int64),
		sheetsAPIErrors:     make(map[string]map[int]int64),
	}
}

func IncToolCall(toolName, status string) {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	if _, ok := defaultRegistry.toolCalls[toolName]; !ok {
		defaultRegistry.toolCalls[toolName] = make(map[string]int64)
	}
	defaultRegistry.toolCalls[toolName][status]++
}

func ObserveToolDuration(toolName string, d time.Duration) {
	sec := d.Seconds()

	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	if _, ok := defaultRegistry.toolDurationBuckets[toolName]; !ok {
		defaultRegistry.toolDurationBuckets[toolName] = make([]int64, len(durationBuckets)+1)
	}
	// Buckets are cumulative; the last slot is +Inf and counts every call.
	counts := defaultRegistry.toolDurationBuckets[toolName]
	for i, b := range durationBuckets {
		if sec <= b {
			counts[i]++
		}
	}
	counts[len(durationBuckets)]++
}

// IncRPCRequest counts envelopes by method. Unknown methods are folded into
// a single label to keep cardinality bounded.
func IncRPCRequest(method string) {
	defaultRegistry.mu.Lock()
	defaultRegistry.rpcRequests[method]++
	defaultRegistry.mu.Unlock()
}

func IncRPCError(code int) {
	defaultRegistry.mu.Lock()
	defaultRegistry.rpcErrors[code]++
	defaultRegistry.mu.Unlock()
}

func IncSheetsAPIError(operation string, statusCode int) {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	if _, ok := defaultRegistry.sheetsAPIErrors[operation]; !ok {
		defaultRegistry.sheetsAPIErrors[operation] = make(map[int]int64)
	}
	defaultRegistry.sheetsAPIErrors[operation][statusCode]++
}

func IncAuditWriteFailure() {
	defaultRegistry.mu.Lock()
	defaultRegistry.auditWriteFailures++
	defaultRegistry.mu.Unlock()
}

func RenderPrometheus() string {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()

	var sb strings.Builder

	sb.WriteString("# TYPE sheethub_tool_calls_total counter\n")
	for _, tool := range sortedKeys(defaultRegistry.toolCalls) {
		for _, status := range sortedKeys(defaultRegistry.toolCalls[tool]) {
			sb.WriteString(fmt.Sprintf("sheethub_tool_calls_total{tool=\"%s\",status=\"%s\"} %d\n", tool, status, defaultRegistry.toolCalls[tool][status]))
		}
	}

	sb.WriteString("# TYPE sheethub_tool_duration_seconds_bucket counter\n")
	for _, tool := range sortedKeys(defaultRegistry.toolDurationBuckets) {
		counts := defaultRegistry.toolDurationBuckets[tool]
		for i, v := range counts {
			le := "+Inf"
			if i < len(durationBuckets) {
				le = fmt.Sprintf("%g", durationBuckets[i])
			}
			sb.WriteString(fmt.Sprintf("sheethub_tool_duration_seconds_bucket{tool=\"%s\",le=\"%s\"} %d\n", tool, le, v))
		}
	}

	sb.WriteString("# TYPE sheethub_rpc_requests_total counter\n")
	for _, method := range sortedKeys(defaultRegistry.rpcRequests) {
		sb.WriteString(fmt.Sprintf("sheethub_rpc_requests_total{method=\"%s\"} %d\n", method, defaultRegistry.rpcRequests[method]))
	}

	sb.WriteString("# TYPE sheethub_rpc_errors_total counter\n")
	for _, code := range sortedInts(defaultRegistry.rpcErrors) {
		sb.WriteString(fmt.Sprintf("sheethub_rpc_errors_total{code=\"%d\"} %d\n", code, defaultRegistry.rpcErrors[code]))
	}

	sb.WriteString("# TYPE sheethub_sheets_api_errors_total counter\n")
	for _, op := range sortedKeys(defaultRegistry.sheetsAPIErrors) {
		for _, sc := range sortedInts(defaultRegistry.sheetsAPIErrors[op]) {
			sb.WriteString(fmt.Sprintf("sheethub_sheets_api_errors_total{operation=\"%s\",status_code=\"%d\"} %d\n", op, sc, defaultRegistry.sheetsAPIErrors[op][sc]))
		}
	}

	sb.WriteString("# TYPE sheethub_audit_write_failures_total counter\n")
	sb.WriteString(fmt.Sprintf("sheethub_audit_write_failures_total %d\n", defaultRegistry.auditWriteFailures))

	return sb.String()
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedInts[T any](m map[int]T) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
