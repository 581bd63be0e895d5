package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/KeyIP-Protonate/internal/application/protonation"
	domain "github.com/turtacn/KeyIP-Protonate/internal/domain/protonation"
	"github.com/turtacn/KeyIP-Protonate/internal/domain/structure"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/reduce"
	"github.com/turtacn/KeyIP-Protonate/internal/interfaces/http/middleware"
	"github.com/turtacn/KeyIP-Protonate/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testPDB = `ATOM      1  N   GLY A   1      10.000  10.000  10.000  1.00 15.50           N
ATOM      2  CA  GLY A   1      11.458  10.000  10.000  1.00 16.00           C
END
`

// fakeService answers ProtonatePDB from the structure name: "bad" fails in
// the engine, "slow" times out, a body without ATOM records does not parse
// and anything else gains one hydrogen.
type fakeService struct {
	mu    sync.Mutex
	opts  []reduce.Options
	names []string
}

func (f *fakeService) AddHydrogens(_ context.Context, structures []*structure.Structure, _ reduce.Options) ([]*structure.Structure, *protonation.BatchReport) {
	return structures, &protonation.BatchReport{}
}

func (f *fakeService) ProtonatePDB(_ context.Context, name string, data []byte, opts reduce.Options) (*protonation.PDBResult, error) {
	f.mu.Lock()
	f.opts = append(f.opts, opts)
	f.names = append(f.names, name)
	f.mu.Unlock()

	run := &domain.Run{ID: "run-" + name, Structure: name, Flip: opts.Flip, His: opts.Histidines}
	switch {
	case !bytes.Contains(data, []byte("ATOM")):
		return nil, errors.New(errors.ErrCodeStructureParse, "document contains no atoms").WithDetail(name)
	case strings.Contains(name, "bad"):
		run.Outcome = domain.OutcomeEngineFailure
		return &protonation.PDBResult{Run: run}, errors.New(errors.ErrCodeEngineFailure, protonation.EngineFailureMessage)
	case strings.Contains(name, "slow"):
		run.Outcome = domain.OutcomeEngineFailure
		cause := errors.New(errors.ErrCodeEngineTimeout, "reduce exceeded 1s")
		return &protonation.PDBResult{Run: run}, errors.Wrap(cause, errors.ErrCodeEngineFailure, protonation.EngineFailureMessage)
	}
	run.Outcome = domain.OutcomeProtonated
	run.Added = 1
	return &protonation.PDBResult{PDB: append([]byte("REMARK protonated\n"), data...), Run: run}, nil
}

func (f *fakeService) lastOptions() reduce.Options {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opts[len(f.opts)-1]
}

func newTestRouter(register func(r *gin.RouterGroup)) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID())
	register(r.Group("/api/v1"))
	return r
}

func do(r http.Handler, method, target, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

//Personal.AI order the ending
