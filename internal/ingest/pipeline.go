package ingest

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sgx-labs/convsearch/internal/accum"
	"github.com/sgx-labs/convsearch/internal/embedding"
	"github.com/sgx-labs/convsearch/internal/kgraph"
	"github.com/sgx-labs/convsearch/internal/rank"
	"github.com/sgx-labs/convsearch/internal/store"
)

// chunkCharThreshold caps how much text a single Extractor call sees at
// once, mirroring the teacher's MaxEmbedChars split for oversized notes.
const chunkCharThreshold = 4000

// Candidate is one knowledge fact an Extractor pulls out of a chunk of
// message text, ready to become a semantic ref.
type Candidate struct {
	KnowledgeType rank.KnowledgeType
	Text          string
	Weight        float64
	// Properties are additional property_name -> value_text facets this
	// candidate should also be indexed under, beyond its own term (e.g. an
	// action candidate might also carry {"status": "open"}).
	Properties map[string]string
}

// Extractor turns one chunk of message text into semantic ref candidates.
// internal/extract provides the LLM-backed implementation; Pipeline
// depends only on this interface, the same dependency inversion
// internal/extern uses to keep the query engine from importing a concrete
// store package.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]Candidate, error)
}

// Scrubber redacts sensitive content from message text before it is stored
// or indexed. internal/scrub provides the go-promptguard-backed
// implementation. A nil Scrubber on Pipeline disables scrubbing.
type Scrubber interface {
	Scrub(text string) (clean string, redacted bool)
}

// FuzzyTermIndexer is satisfied by internal/relatedfuzzy.Index; declared
// here rather than importing that package directly so Pipeline's optional
// dependencies stay interface-shaped.
type FuzzyTermIndexer interface {
	IndexTerm(ctx context.Context, termText string) error
}

// Stats summarizes one ingest run.
type Stats struct {
	TotalFiles           int
	Ingested             int
	SkippedUnchanged     int
	Errors               int
	ConversationsInIndex int
	MessagesInIndex      int
	SemanticRefsInIndex  int
}

// Pipeline wires the store's write-side collections/indices, an embedding
// provider, and an Extractor/Scrubber into one ingest entry point.
type Pipeline struct {
	DB            *store.DB
	Conversations *store.Conversations
	Messages      *store.Messages
	SemanticRefs  *store.SemanticRefs
	TermIndex     *store.TermIndex
	PropertyIndex *store.PropertyIndex
	TextIndex     *store.MessageTextIndex
	Embedder      embedding.Provider
	Extractor     Extractor
	Scrubber      Scrubber

	// FuzzyIndex, when set, is fed every term an Extractor mints so
	// TermToRelatedTermsFuzzy has something to search. Optional.
	FuzzyIndex FuzzyTermIndexer
	// Graph, when set, is rebuilt from the store at the end of an
	// IngestDir run so the knowledge graph stays in sync with whatever was
	// just ingested. Optional.
	Graph *kgraph.DB
}

// New builds a Pipeline from db's collections/indices, embedder, and the
// extraction/scrub implementations. embedder, extractor, and scrubber may
// each be nil to disable that stage (a keyword-only or extraction-free
// ingest still stores conversations and messages).
func New(db *store.DB, embedder embedding.Provider, extractor Extractor, scrubber Scrubber) *Pipeline {
	return &Pipeline{
		DB:            db,
		Conversations: store.NewConversations(db),
		Messages:      store.NewMessages(db),
		SemanticRefs:  store.NewSemanticRefs(db),
		TermIndex:     store.NewTermIndex(db),
		PropertyIndex: store.NewPropertyIndex(db),
		TextIndex:     store.NewMessageTextIndex(db, embedder),
		Embedder:      embedder,
		Extractor:     extractor,
		Scrubber:      scrubber,
	}
}

// IngestDir walks dirPath for transcript files and ingests each one. A
// transcript is identified by extension (.md, .txt, .json), not content —
// any of the three may carry YAML frontmatter or none at all. force
// re-ingests every file regardless of whether its content hash already
// matches a prior ingest.
func (p *Pipeline) IngestDir(ctx context.Context, dirPath string, force bool) (*Stats, error) {
	files, err := walkTranscripts(dirPath)
	if err != nil {
		return nil, fmt.Errorf("walk transcript dir %s: %w", dirPath, err)
	}

	stats := &Stats{TotalFiles: len(files)}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("ingest dir: %w", err)
		}
		ingested, err := p.IngestFile(ctx, path, force)
		if err != nil {
			stats.Errors++
			continue
		}
		if ingested {
			stats.Ingested++
		} else {
			stats.SkippedUnchanged++
		}
	}

	if p.Graph != nil && stats.Ingested > 0 {
		if err := p.Graph.PopulateFromStore(); err != nil {
			return stats, fmt.Errorf("populate graph: %w", err)
		}
	}

	convCount, _ := p.Conversations.Count(ctx)
	msgCount, _ := p.Messages.Count(ctx)
	refCount, _ := p.SemanticRefs.Count(ctx)
	stats.ConversationsInIndex = convCount
	stats.MessagesInIndex = msgCount
	stats.SemanticRefsInIndex = refCount
	return stats, nil
}

// IngestFile parses and ingests a single transcript file. It returns false
// without error if the file's content hash already matches a prior ingest
// and force is false.
func (p *Pipeline) IngestFile(ctx context.Context, path string, force bool) (bool, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	hash := contentHash(content)
	metaKey := "ingest:" + path

	if !force {
		if existing, ok := p.DB.GetMeta(metaKey); ok && existing == hash {
			return false, nil
		}
	}

	if existing, ok, err := p.Conversations.FindBySourcePath(ctx, path); err != nil {
		return false, err
	} else if ok {
		if err := p.Conversations.DeleteConversation(ctx, existing.ID); err != nil {
			return false, fmt.Errorf("delete stale conversation for %s: %w", path, err)
		}
	}

	parsed := ParseTranscript(string(content))
	title := parsed.Meta.Title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	convID, err := p.Conversations.AddConversation(ctx, title, path)
	if err != nil {
		return false, fmt.Errorf("add conversation: %w", err)
	}

	turns := SplitTurns(parsed.Body)
	base := time.Now().UTC()
	for i, turn := range turns {
		if err := ctx.Err(); err != nil {
			return false, fmt.Errorf("ingest %s: %w", path, err)
		}
		text := turn.Text
		if p.Scrubber != nil {
			if clean, _ := p.Scrubber.Scrub(text); clean != "" {
				text = clean
			}
		}
		ts := turn.Timestamp
		if ts.IsZero() {
			ts = base.Add(time.Duration(i) * time.Second)
		}

		msgOrdinal, err := p.Messages.AddMessage(ctx, convID, text, ts)
		if err != nil {
			return false, fmt.Errorf("add message: %w", err)
		}

		if p.Embedder != nil {
			vec, err := p.Embedder.GetDocumentEmbedding(text)
			if err != nil {
				return false, fmt.Errorf("embed message %d: %w", msgOrdinal, err)
			}
			if err := p.TextIndex.AddEmbedding(ctx, msgOrdinal, vec); err != nil {
				return false, fmt.Errorf("store embedding for message %d: %w", msgOrdinal, err)
			}
		}

		if p.Extractor == nil {
			continue
		}
		for chunkOrdinal, chunk := range chunkText(text, chunkCharThreshold) {
			candidates, err := p.Extractor.Extract(ctx, chunk)
			if err != nil {
				return false, fmt.Errorf("extract message %d chunk %d: %w", msgOrdinal, chunkOrdinal, err)
			}
			for _, c := range candidates {
				if err := p.addCandidate(ctx, msgOrdinal, chunkOrdinal, c); err != nil {
					return false, err
				}
			}
		}
	}

	if err := p.DB.SetMeta(metaKey, hash); err != nil {
		return false, fmt.Errorf("record ingest hash for %s: %w", path, err)
	}
	return true, nil
}

func (p *Pipeline) addCandidate(ctx context.Context, msgOrdinal accum.MessageOrdinal, chunkOrdinal int, c Candidate) error {
	refOrdinal, err := p.SemanticRefs.AddSemanticRef(ctx, msgOrdinal, chunkOrdinal, c.KnowledgeType, c.Text)
	if err != nil {
		return fmt.Errorf("add semantic ref %q: %w", c.Text, err)
	}
	weight := c.Weight
	if weight == 0 {
		weight = 1.0
	}
	if err := p.TermIndex.AddTerm(ctx, c.Text, refOrdinal, weight); err != nil {
		return fmt.Errorf("index term %q: %w", c.Text, err)
	}
	if p.FuzzyIndex != nil {
		if err := p.FuzzyIndex.IndexTerm(ctx, c.Text); err != nil {
			return fmt.Errorf("fuzzy-index term %q: %w", c.Text, err)
		}
	}
	for name, value := range c.Properties {
		if err := p.PropertyIndex.AddProperty(ctx, name, value, refOrdinal, weight); err != nil {
			return fmt.Errorf("index property %s=%q: %w", name, value, err)
		}
	}
	return nil
}

func walkTranscripts(dirPath string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if IsTranscriptPath(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// IsTranscriptPath reports whether path has an extension IngestDir treats
// as a conversation transcript. Exported so internal/watch can filter
// filesystem events with the same rule IngestDir uses for a directory walk.
func IsTranscriptPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".txt", ".json":
		return true
	default:
		return false
	}
}

func contentHash(content []byte) string {
	h := sha256.Sum256(content)
	return fmt.Sprintf("%x", h)
}

// chunkText splits text into pieces no longer than maxChars, preferring to
// break on a newline or space boundary past the halfway point so a chunk
// doesn't end mid-word when a message runs long.
func chunkText(text string, maxChars int) []string {
	if len(text) <= maxChars {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}
	var chunks []string
	for len(text) > maxChars {
		cut := maxChars
		if idx := strings.LastIndexByte(text[:cut], '\n'); idx > maxChars/2 {
			cut = idx
		} else if idx := strings.LastIndexByte(text[:cut], ' '); idx > maxChars/2 {
			cut = idx
		}
		if piece := strings.TrimSpace(text[:cut]); piece != "" {
			chunks = append(chunks, piece)
		}
		text = text[cut:]
	}
	if piece := strings.TrimSpace(text); piece != "" {
		chunks = append(chunks, piece)
	}
	return chunks
}
