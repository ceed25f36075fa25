package records

import (
	"context"
	"fmt"
)

// Gateway is the five-operation contract of the record store. Implementations
// never add the soft-delete predicate themselves.
type Gateway interface {
	FetchMany(ctx context.Context, table string, q Query) (*FetchResult, error)
	FetchOne(ctx context.Context, table string, id int64, q Query) (Record, error)
	CreateMany(ctx context.Context, table string, recs []Record) (*MutationResult, error)
	UpdateMany(ctx context.Context, table string, recs []Record) (*MutationResult, error)
	DeleteMany(ctx context.Context, table string, ids []int64) (*DeleteResult, error)
}

type FetchResult struct {
	Data  []Record `json:"data"`
	Count int      `json:"count"`
}

type RecordResult struct {
	Success bool   `json:"success"`
	Data    Record `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// MutationResult is the envelope returned by CreateMany and UpdateMany.
type MutationResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Results []RecordResult `json:"results"`
}

// First returns the data of the single record a caller wrapped in a
// one-element batch.
func (m *MutationResult) First(op, table string) (Record, error) {
	if m == nil {
		return nil, &RemoteError{Op: op, Table: table, Message: "empty response"}
	}
	if !m.Success {
		msg := m.Message
		if len(m.Results) > 0 && m.Results[0].Message != "" {
			msg = m.Results[0].Message
		}
		return nil, &RemoteError{Op: op, Table: table, Message: msg, Rejected: true}
	}
	if len(m.Results) == 0 {
		return nil, &RemoteError{Op: op, Table: table, Message: "backend reported success without results"}
	}
	res := m.Results[0]
	if !res.Success {
		return nil, &RemoteError{Op: op, Table: table, Message: res.Message, Rejected: true}
	}
	if res.Data == nil {
		return nil, &RemoteError{Op: op, Table: table, Message: "backend reported success without data"}
	}
	return res.Data, nil
}

type DeleteResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Mutate runs fn over a batch and collects one RecordResult per record. The
// envelope succeeds only when every record does.
func Mutate(recs []Record, fn func(Record) (Record, error)) *MutationResult {
	out := &MutationResult{Success: true, Results: make([]RecordResult, 0, len(recs))}
	for i, rec := range recs {
		data, err := fn(rec)
		if err != nil {
			out.Success = false
			if out.Message == "" {
				out.Message = fmt.Sprintf("record %d: %v", i, err)
			}
			out.Results = append(out.Results, RecordResult{Success: false, Message: err.Error()})
			continue
		}
		out.Results = append(out.Results, RecordResult{Success: true, Data: data})
	}
	return out
}
