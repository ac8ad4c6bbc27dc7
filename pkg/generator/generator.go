// Package generator asks a language model for questions about every
// published document and stores them for knowledge base evaluation.
package generator

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ValerySidorin/sopsync/pkg/document"
	"github.com/ValerySidorin/sopsync/pkg/kvstore"
	"github.com/ValerySidorin/sopsync/pkg/llm"
	"github.com/ValerySidorin/sopsync/pkg/notifier"
	"github.com/ValerySidorin/sopsync/pkg/objstore"
	"github.com/ValerySidorin/sopsync/pkg/syncstate"
	util_io "github.com/ValerySidorin/sopsync/pkg/util/io"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	QuestionsTable = "questions"
	GeneratedTable = "generated_questions"
	GeneratorName  = "AI"
)

type Config struct {
	TempDir   string `yaml:"temp_dir"`
	Pdftotext string `yaml:"pdftotext"`
	MaxFiles  int    `yaml:"max_files"`
}

func (c *Config) RegisterFlags(flagPrefix string, f *flag.FlagSet) {
	f.StringVar(&c.TempDir, flagPrefix+"temp-dir", "tmp", `Scratch directory for binaries and extracted text.`)
	f.StringVar(&c.Pdftotext, flagPrefix+"pdftotext", "pdftotext", `Path of the pdftotext binary.`)
	f.IntVar(&c.MaxFiles, flagPrefix+"max-files", 0, `Documents handled per run, 0 for all.`)
}

type Completer interface {
	Questions(ctx context.Context, text string) ([]llm.Question, error)
}

// Question is the stored form of a generated question.
type Question struct {
	QuestionID string    `json:"question_id"`
	Query      string    `json:"Query"`
	Language   string    `json:"Language"`
	Site       string    `json:"Site"`
	Expected   string    `json:"Expected"`
	Generator  string    `json:"Generator"`
	Source     string    `json:"source"`
	RunID      string    `json:"run_id"`
	CreatedAt  time.Time `json:"created_at"`
}

type marker struct {
	Source      string    `json:"source"`
	Questions   []string  `json:"question_ids"`
	GeneratedAt time.Time `json:"generated_at"`
}

type Entry struct {
	Key       string `json:"key"`
	Questions int    `json:"questions"`
	Error     string `json:"error,omitempty"`
}

type Report struct {
	RunID   string  `json:"run_id"`
	Entries []Entry `json:"entries"`
	Error   string  `json:"error,omitempty"`
}

func (r *Report) failures() int {
	n := 0
	for _, e := range r.Entries {
		if e.Error != "" {
			n++
		}
	}
	return n
}

type Generator struct {
	cfg   Config
	runID string

	objects   objstore.Store
	kv        kvstore.Store
	states    *syncstate.Store
	converter Converter
	completer Completer
	notifier  notifier.Notifier

	log       log.Logger
	generated *prometheus.CounterVec
	now       func() time.Time
	newID     func() string
}

func New(cfg Config, runID string, objects objstore.Store, kv kvstore.Store, converter Converter, completer Completer, n notifier.Notifier, reg prometheus.Registerer, logger log.Logger) *Generator {
	return &Generator{
		cfg:       cfg,
		runID:     runID,
		objects:   objects,
		kv:        kv,
		states:    syncstate.New(kv),
		converter: converter,
		completer: completer,
		notifier:  n,
		log:       log.With(logger, "component", "generator"),
		generated: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "sopsync",
			Name:      "generated_questions_documents_total",
			Help:      "Documents handled by question generation, by outcome.",
		}, []string{"outcome"}),
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
}

// Run generates questions for every published binary that has none yet.
// Failures are collected per document and reported through the notifier.
func (g *Generator) Run(ctx context.Context) (*Report, error) {
	rep := &Report{RunID: g.runID, Entries: []Entry{}}

	err := g.run(ctx, rep)
	if err != nil {
		rep.Error = err.Error()
		level.Error(g.log).Log("msg", "question generation failed", "err", err)
	}

	if err != nil || rep.failures() > 0 {
		if nerr := g.notifier.Send(ctx, "[FAILURE] Question generation. "+g.runID, rep); nerr != nil {
			level.Warn(g.log).Log("msg", "failed to send report", "err", nerr)
		}
	}
	return rep, err
}

func (g *Generator) run(ctx context.Context, rep *Report) error {
	if err := util_io.EnsureDir(g.cfg.TempDir); err != nil {
		return err
	}

	keys, err := g.objects.List(ctx, document.KnowledgeBasePrefix+"/")
	if err != nil {
		return errors.Wrap(err, "list published documents")
	}

	for _, key := range keys {
		if !strings.HasSuffix(key, document.BinaryExt) {
			continue
		}
		if g.cfg.MaxFiles > 0 && len(rep.Entries) >= g.cfg.MaxFiles {
			level.Info(g.log).Log("msg", "file limit reached", "limit", g.cfg.MaxFiles)
			break
		}

		done, err := g.done(ctx, key)
		if err != nil {
			return err
		}
		if done {
			continue
		}

		n, err := g.generate(ctx, key)
		e := Entry{Key: key, Questions: n}
		if err != nil {
			level.Error(g.log).Log("msg", "failed to generate questions", "key", key, "err", err)
			e.Error = err.Error()
			g.generated.WithLabelValues("failed").Inc()
		} else {
			g.generated.WithLabelValues("ok").Inc()
		}
		rep.Entries = append(rep.Entries, e)
	}

	level.Info(g.log).Log("msg", "question generation finished", "documents", len(rep.Entries), "failed", rep.failures())
	return nil
}

func (g *Generator) done(ctx context.Context, key string) (bool, error) {
	_, found, err := g.kv.Get(ctx, GeneratedTable, key)
	if err != nil {
		return false, errors.Wrap(err, "read generated marker")
	}
	return found, nil
}

func (g *Generator) generate(ctx context.Context, key string) (int, error) {
	base := path.Base(key)
	local := filepath.Join(g.cfg.TempDir, base)
	textPath := strings.TrimSuffix(local, document.BinaryExt) + ".txt"
	defer os.Remove(local)
	defer os.Remove(textPath)

	if err := g.objects.DownloadToLocal(ctx, key, local); err != nil {
		return 0, errors.Wrap(err, "download binary")
	}

	text, err := g.converter.Convert(ctx, local)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(textPath, []byte(text), 0o644); err != nil {
		return 0, errors.Wrap(err, "write extracted text")
	}

	qs, err := g.completer.Questions(ctx, text)
	if err != nil {
		return 0, err
	}
	if len(qs) == 0 {
		return 0, errors.New("model returned no questions")
	}

	expected, err := g.expected(ctx, base)
	if err != nil {
		return 0, err
	}

	now := g.now().UTC()
	m := marker{Source: key, Questions: make([]string, 0, len(qs)), GeneratedAt: now}
	for _, q := range qs {
		stored := Question{
			QuestionID: g.newID(),
			Query:      q.Query,
			Language:   q.Language,
			Site:       q.Site,
			Expected:   expected,
			Generator:  GeneratorName,
			Source:     key,
			RunID:      g.runID,
			CreatedAt:  now,
		}
		b, err := json.Marshal(stored)
		if err != nil {
			return 0, errors.Wrap(err, "encode question")
		}
		if err := g.kv.Put(ctx, QuestionsTable, stored.QuestionID, b); err != nil {
			return 0, errors.Wrap(err, "store question")
		}
		m.Questions = append(m.Questions, stored.QuestionID)
	}

	b, err := json.Marshal(m)
	if err != nil {
		return 0, errors.Wrap(err, "encode generated marker")
	}
	if err := g.kv.Put(ctx, GeneratedTable, key, b); err != nil {
		return 0, errors.Wrap(err, "store generated marker")
	}

	level.Info(g.log).Log("msg", "questions generated", "key", key, "questions", len(qs))
	return len(qs), nil
}

// expected is the document number of the binary named base, or "" when the
// document has no sync state.
func (g *Generator) expected(ctx context.Context, base string) (string, error) {
	id, err := strconv.ParseInt(strings.TrimSuffix(base, document.BinaryExt), 10, 64)
	if err != nil {
		return "", nil
	}
	st, err := g.states.Get(ctx, id)
	if err != nil || st == nil {
		return "", err
	}
	return st.DocumentNumber, nil
}
