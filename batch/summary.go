package batch

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zing22845/go-wxcrypt/cryptoerr"
)

// Report counts the outcomes of a batch.
type Report struct {
	Total   int
	Skipped int
	Written int64
	ByKind  map[cryptoerr.Kind]int
}

func Summary(results []Result) *Report {
	r := &Report{ByKind: make(map[cryptoerr.Kind]int)}
	for i := range results {
		r.Total++
		r.ByKind[results[i].Kind]++
		if results[i].Skipped {
			r.Skipped++
		}
		r.Written += results[i].Written
	}
	return r
}

// Failed is the number of hard failures.
func (r *Report) Failed() int {
	n := 0
	for k, c := range r.ByKind {
		if k.Hard() {
			n += c
		}
	}
	return n
}

func (r *Report) String() string {
	kinds := make([]cryptoerr.Kind, 0, len(r.ByKind))
	for k := range r.ByKind {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, fmt.Sprintf("%s=%d", k, r.ByKind[k]))
	}
	return fmt.Sprintf("total=%d skipped=%d written=%d %s",
		r.Total, r.Skipped, r.Written, strings.Join(parts, " "))
}

// HasHardFailures reports whether any result is neither ok nor canceled.
func HasHardFailures(results []Result) bool {
	for i := range results {
		if results[i].Kind.Hard() {
			return true
		}
	}
	return false
}
