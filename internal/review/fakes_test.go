package review

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/dshills/docreview/internal/agent"
	"github.com/dshills/docreview/internal/extract"
)

// handler answers one model call. Returning a value that is not a string
// encodes it as JSON.
type handler func(req agent.Request) (any, error)

// fakeProvider dispatches calls to per-agent handlers and counts them.
type fakeProvider struct {
	mu       sync.Mutex
	handlers map[string]handler
	calls    map[string]int
	requests []agent.Request
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{handlers: make(map[string]handler), calls: make(map[string]int)}
}

func (p *fakeProvider) on(agentID string, h handler) *fakeProvider {
	p.handlers[agentID] = h
	return p
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Generate(_ context.Context, req agent.Request) (agent.Response, error) {
	p.mu.Lock()
	p.calls[req.Agent]++
	p.requests = append(p.requests, req)
	h, ok := p.handlers[req.Agent]
	p.mu.Unlock()
	if !ok {
		return agent.Response{}, fmt.Errorf("no handler for agent %s", req.Agent)
	}

	v, err := h(req)
	if err != nil {
		return agent.Response{}, err
	}
	content, ok := v.(string)
	if !ok {
		b, err := json.Marshal(v)
		if err != nil {
			return agent.Response{}, err
		}
		content = string(b)
	}
	return agent.Response{Content: content, FinishReason: agent.FinishStop}, nil
}

func (p *fakeProvider) count(agentID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[agentID]
}

func (p *fakeProvider) runtime() *agent.Runtime {
	return agent.NewRuntime(p, Agents())
}

// memRepo is an in-memory Repository.
type memRepo struct {
	mu          sync.Mutex
	checklists  []ChecklistItem
	results     map[int]ReviewResult
	individuals map[string]IndividualResult
	documents   []Document
	docNames    string
	status      Status
	message     string
	memo        map[string]int
	events      []string
}

func newMemRepo(items ...string) *memRepo {
	r := &memRepo{
		results:     make(map[int]ReviewResult),
		individuals: make(map[string]IndividualResult),
		memo:        make(map[string]int),
	}
	for i, c := range items {
		r.checklists = append(r.checklists, ChecklistItem{ID: i + 1, Content: c})
	}
	return r
}

func (r *memRepo) log(ev string) {
	r.events = append(r.events, ev)
}

func (r *memRepo) GetChecklists(context.Context, string) ([]ChecklistItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ChecklistItem(nil), r.checklists...), nil
}

func (r *memRepo) UpsertReviewResults(_ context.Context, _ string, results []ReviewResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log("upsert")
	for _, res := range results {
		r.results[res.ChecklistID] = res
	}
	return nil
}

func (r *memRepo) DeleteAllReviewResults(context.Context, string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log("delete")
	r.results = make(map[int]ReviewResult)
	return nil
}

func (r *memRepo) UpsertIndividualResults(_ context.Context, _ string, results []IndividualResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log("individual")
	for _, res := range results {
		r.individuals[fmt.Sprintf("%d/%s", res.ChecklistID, res.DocumentID)] = res
	}
	return nil
}

func (r *memRepo) SaveReviewDocuments(_ context.Context, _ string, docs []Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.documents = docs
	return nil
}

func (r *memRepo) SetRunDocumentNames(_ context.Context, _ string, names string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docNames = names
	return nil
}

func (r *memRepo) SetRunStatus(_ context.Context, _ string, status Status, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status, r.message = status, message
	return nil
}

func (r *memRepo) GetMaxTotalChunksForDocument(_ context.Context, fileID, purpose string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.memo[fileID+"/"+purpose], nil
}

func (r *memRepo) RecordTotalChunksForDocument(_ context.Context, fileID, purpose string, total int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := fileID + "/" + purpose
	r.memo[key] = max(r.memo[key], total)
	return nil
}

func (r *memRepo) resultIDs() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []int
	for id := range r.results {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// fakeExtractor serves canned contents by path.
type fakeExtractor map[string]extract.Content

func (f fakeExtractor) Extract(_ context.Context, file extract.File) (extract.Content, error) {
	c, ok := f[file.Path]
	if !ok {
		return extract.Content{}, &extract.Error{Path: file.Path, Err: fmt.Errorf("no such file")}
	}
	return c, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	outcomes []RunOutcome
}

func (n *recordingNotifier) RunFinished(_ context.Context, o RunOutcome) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.outcomes = append(n.outcomes, o)
}

func textContent(hash, text string) extract.Content {
	return extract.Content{Hash: hash, Type: "txt", Mode: extract.ModeText, Text: text}
}
