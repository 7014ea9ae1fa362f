// Package rpc implements the JSON-RPC line protocol this bridge speaks
// over stdin/stdout (spec §1, §6): request/response envelopes, the
// operation dispatch table, and the stdio serve loop. The framing and
// dispatch shape are kept in the teacher's manner; every operation and
// argument type below is this bridge's own domain (records, tables,
// filters), not the teacher's.
package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Grupo-AFAL/smartsuite-bridge/internal/cache"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/cacheerr"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/config"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/debug"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/executor"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/filter"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/remote"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/shaper"
	"github.com/Grupo-AFAL/smartsuite-bridge/internal/types"
)

// Operation constants for every request this bridge understands.
const (
	OpPing         = "ping"
	OpStatus       = "status"
	OpHealth       = "health"
	OpList         = "list"
	OpGet          = "get"
	OpListEntities = "list_entities"
	OpPutRecord    = "put_record"
	OpInvalidate   = "invalidate"
	OpConfigSetTTL = "config_set_ttl"
	OpConfigList   = "config_list"
)

// Request is a single JSON-RPC line from the AI client to this bridge.
type Request struct {
	Operation string          `json:"operation"`
	Args      json.RawMessage `json:"args"`
	RequestID string          `json:"request_id,omitempty"`
}

// Response is this bridge's reply to one Request.
type Response struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// PingResponse answers OpPing.
type PingResponse struct {
	Message string `json:"message"`
}

// StatusResponse answers OpStatus (spec §6 "cache status").
type StatusResponse struct {
	CachePath         string                    `json:"cache_path"`
	DefaultTTLSeconds int                       `json:"default_ttl_seconds"`
	UptimeSeconds     float64                   `json:"uptime_seconds"`
	EntityClassStatus []cache.EntityClassStatus `json:"entity_class_status"`
}

// HealthResponse answers OpHealth.
type HealthResponse struct {
	OK         bool   `json:"ok"`
	CacheError string `json:"cache_error,omitempty"`
}

// ListArgs is the request shape for a records query (spec §6).
type ListArgs struct {
	TableID            string            `json:"table_id"`
	Fields             []string          `json:"fields"`
	Filter             *filter.Node      `json:"filter,omitempty"`
	Sort               []types.SortField `json:"sort,omitempty"`
	Limit              int               `json:"limit,omitempty"`
	Offset             int               `json:"offset,omitempty"`
	BypassCache        bool              `json:"bypass_cache,omitempty"`
	Format             string            `json:"format,omitempty"` // "tabular" | "json"
	SummarizeDocuments bool              `json:"summarize_documents,omitempty"`
}

// GetArgs requests a single record by id.
type GetArgs struct {
	TableID            string   `json:"table_id"`
	RecordID           string   `json:"record_id"`
	Fields             []string `json:"fields"`
	Format             string   `json:"format,omitempty"`
	SummarizeDocuments bool     `json:"summarize_documents,omitempty"`
}

// ListEntitiesArgs requests directory-level entities of one kind
// (solutions, members, teams, views), optionally name-filtered with the
// fuzzy matcher (spec §4.1, §6 "fetch_list(kind, filters?)").
type ListEntitiesArgs struct {
	Kind      types.EntityKind `json:"kind"`
	NameQuery string           `json:"name_query,omitempty"`
}

// ListEntitiesResponse answers OpListEntities.
type ListEntitiesResponse struct {
	Items  []json.RawMessage `json:"items"`
	Source string            `json:"source"`
}

// PutRecordArgs write-throughs a freshly-mutated record into the cache
// (spec §4.7 "Mutation write-through").
type PutRecordArgs struct {
	TableID string       `json:"table_id"`
	Record  types.Record `json:"record"`
}

// InvalidateArgs drives cache invalidation (spec §4.6 op 7).
type InvalidateArgs struct {
	Kind             types.EntityKind `json:"kind"`
	ID               string           `json:"id"`
	StructureChanged bool             `json:"structure_changed,omitempty"`
	SolutionID       string           `json:"solution_id,omitempty"`
	TableID          string           `json:"table_id,omitempty"`
}

// ConfigSetTTLArgs sets a per-table TTL override (SPEC_FULL D.3).
type ConfigSetTTLArgs struct {
	TableID string `json:"table_id"`
	Seconds int    `json:"seconds"`
}

// TableResolver resolves a table id to its cached or freshly-fetched
// schema, the one piece of context every record operation needs beyond
// what the Cache Store alone tracks (spec §3: Table belongs to exactly
// one Solution and carries a field list).
type TableResolver interface {
	ResolveTable(ctx context.Context, tableID string) (types.Table, error)
}

// Dispatcher wires the cache-aware executor, the response shaper, and
// live configuration together behind the operation table above. One
// Dispatcher serves one bridge process's stdio loop.
type Dispatcher struct {
	Executor   *executor.Executor
	Cache      *cache.Store
	Tables     TableResolver
	Config     *config.Manager
	Summarizer shaper.Summarizer
	StartedAt  time.Time
	Metrics    *Metrics
}

// Dispatch routes one decoded Request to its handler and always returns
// a Response, never an error — failures are carried in Response.Error
// per spec §6's error shape.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Response {
	resp := Response{RequestID: req.RequestID}

	t0 := time.Now()
	data, err := d.dispatch(ctx, req)
	latency := time.Since(t0)

	if d.Metrics != nil {
		d.Metrics.RecordRequest(ctx, req.Operation, latency)
		if err != nil {
			d.Metrics.RecordError(ctx, req.Operation)
		}
	}
	debug.Logf("rpc: op=%s latency=%s err=%v\n", req.Operation, latency, err)

	if err != nil {
		resp.Success = false
		resp.Error = err.Error()
		return resp
	}
	resp.Success = true
	resp.Data = data
	return resp
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request) (json.RawMessage, error) {
	switch req.Operation {
	case OpPing:
		return encode(PingResponse{Message: "pong"})
	case OpStatus:
		return d.handleStatus(ctx)
	case OpHealth:
		return d.handleHealth(ctx)
	case OpList:
		return d.handleList(ctx, req.Args)
	case OpGet:
		return d.handleGet(ctx, req.Args)
	case OpListEntities:
		return d.handleListEntities(ctx, req.Args)
	case OpPutRecord:
		return d.handlePutRecord(ctx, req.Args)
	case OpInvalidate:
		return d.handleInvalidate(ctx, req.Args)
	case OpConfigSetTTL:
		return d.handleConfigSetTTL(ctx, req.Args)
	case OpConfigList:
		return d.handleConfigList(ctx)
	default:
		return nil, fmt.Errorf("unknown operation %q", req.Operation)
	}
}

func (d *Dispatcher) handleStatus(ctx context.Context) (json.RawMessage, error) {
	cfg := d.Config.Current()
	classStatus, err := d.Cache.Status(ctx, cfg.DefaultTTLSeconds)
	if err != nil {
		return nil, cacheerr.Wrap("status", err)
	}
	return encode(StatusResponse{
		CachePath:         cfg.CachePath,
		DefaultTTLSeconds: cfg.DefaultTTLSeconds,
		UptimeSeconds:     time.Since(d.StartedAt).Seconds(),
		EntityClassStatus: classStatus,
	})
}

func (d *Dispatcher) handleHealth(ctx context.Context) (json.RawMessage, error) {
	if _, err := d.Cache.Status(ctx, d.Config.Current().DefaultTTLSeconds); err != nil {
		return encode(HealthResponse{OK: false, CacheError: err.Error()})
	}
	return encode(HealthResponse{OK: true})
}

func (d *Dispatcher) handleList(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var args ListArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, cacheerr.Wrapf(cacheerr.ErrValidation, "decode list args: %v", err)
	}

	table, err := d.Tables.ResolveTable(ctx, args.TableID)
	if err != nil {
		return nil, err
	}

	result, err := d.Executor.List(ctx, table, args.Filter, args.Sort, args.Limit, args.Offset, args.BypassCache)
	if err != nil {
		return nil, err
	}

	out, err := shaper.Shape(ctx, result.Rows, table, shaper.Request{
		Fields:             args.Fields,
		Format:             shapeFormat(args.Format),
		Timezone:           d.Config.Current().Location(),
		Warnings:           result.Warnings,
		TotalCount:         result.TotalCount,
		FilteredCount:      result.FilteredCount,
		Summarizer:         d.Summarizer,
		SummarizeDocuments: args.SummarizeDocuments,
	})
	if err != nil {
		return nil, err
	}
	return encode(out)
}

func (d *Dispatcher) handleGet(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var args GetArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, cacheerr.Wrapf(cacheerr.ErrValidation, "decode get args: %v", err)
	}

	table, err := d.Tables.ResolveTable(ctx, args.TableID)
	if err != nil {
		return nil, err
	}

	rec, _, err := d.Executor.Get(ctx, table, args.RecordID)
	if err != nil {
		return nil, err
	}

	out, err := shaper.Shape(ctx, []types.Record{rec}, table, shaper.Request{
		Fields:             args.Fields,
		Format:             shapeFormat(args.Format),
		Timezone:           d.Config.Current().Location(),
		TotalCount:         1,
		FilteredCount:      1,
		Summarizer:         d.Summarizer,
		SummarizeDocuments: args.SummarizeDocuments,
	})
	if err != nil {
		return nil, err
	}
	return encode(out)
}

func (d *Dispatcher) handleListEntities(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var args ListEntitiesArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, cacheerr.Wrapf(cacheerr.ErrValidation, "decode list_entities args: %v", err)
	}

	result, err := d.Executor.ListEntities(ctx, args.Kind, args.NameQuery)
	if err != nil {
		return nil, err
	}
	items := result.Items
	if items == nil {
		items = []json.RawMessage{}
	}
	return encode(ListEntitiesResponse{Items: items, Source: string(result.Source)})
}

func (d *Dispatcher) handlePutRecord(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var args PutRecordArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, cacheerr.Wrapf(cacheerr.ErrValidation, "decode put_record args: %v", err)
	}

	table, err := d.Tables.ResolveTable(ctx, args.TableID)
	if err != nil {
		return nil, err
	}

	if err := d.Executor.PutRecord(ctx, table, args.Record); err != nil {
		return nil, err
	}
	return encode(map[string]bool{"ok": true})
}

func (d *Dispatcher) handleInvalidate(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var args InvalidateArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, cacheerr.Wrapf(cacheerr.ErrValidation, "decode invalidate args: %v", err)
	}

	scope := cache.InvalidateScope{SolutionID: args.SolutionID, TableID: args.TableID}
	if err := d.Cache.Invalidate(ctx, args.Kind, args.ID, args.StructureChanged, scope); err != nil {
		return nil, err
	}
	return encode(map[string]bool{"ok": true})
}

func (d *Dispatcher) handleConfigSetTTL(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var args ConfigSetTTLArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, cacheerr.Wrapf(cacheerr.ErrValidation, "decode config_set_ttl args: %v", err)
	}
	if err := d.Config.SetTableTTL(args.TableID, args.Seconds); err != nil {
		return nil, err
	}
	return encode(map[string]bool{"ok": true})
}

func (d *Dispatcher) handleConfigList(ctx context.Context) (json.RawMessage, error) {
	return encode(d.Config.Current())
}

func shapeFormat(raw string) shaper.Format {
	if raw == string(shaper.FormatJSON) {
		return shaper.FormatJSON
	}
	return shaper.FormatTabular
}

func encode(v interface{}) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return b, nil
}

// Serve reads newline-delimited JSON Requests from r and writes
// newline-delimited JSON Responses to w until r is exhausted or ctx is
// cancelled (spec §1's "JSON-RPC line protocol over standard input and
// output"). One malformed line produces an error Response and does not
// terminate the loop.
func Serve(ctx context.Context, d *Dispatcher, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			_ = enc.Encode(Response{Success: false, Error: fmt.Sprintf("malformed request: %v", err)})
			continue
		}

		resp := d.Dispatch(ctx, req)
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	return scanner.Err()
}
