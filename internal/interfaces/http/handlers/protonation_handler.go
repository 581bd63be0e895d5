package handlers

import (
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/KeyIP-Protonate/internal/application/protonation"
	domain "github.com/turtacn/KeyIP-Protonate/internal/domain/protonation"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Protonate/internal/infrastructure/reduce"
	"github.com/turtacn/KeyIP-Protonate/internal/interfaces/http/middleware"
	"github.com/turtacn/KeyIP-Protonate/pkg/errors"
)

// ContentTypePDB is the media type of PDB documents.
const ContentTypePDB = "chemical/x-pdb"

// DefaultStructureName names documents posted without ?name.
const DefaultStructureName = "structure"

// ProtonateRequest is the JSON form of a protonation request.
type ProtonateRequest struct {
	Name string `json:"name"`
	PDB  string `json:"pdb" binding:"required"`
	Flip *bool  `json:"flip,omitempty"`
	His  *bool  `json:"his,omitempty"`
}

// ProtonateResponse is the JSON answer.  PDB is empty when the engine
// failed.
type ProtonateResponse struct {
	Run *domain.Run `json:"run"`
	PDB string      `json:"pdb,omitempty"`
}

// ProtonationHandler serves synchronous protonation of one PDB document.
type ProtonationHandler struct {
	svc      protonation.Service
	defaults reduce.Options
	maxBody  int64
	logger   logging.Logger
}

// NewProtonationHandler creates a handler.  maxBody <= 0 disables the body
// limit.
func NewProtonationHandler(svc protonation.Service, defaults reduce.Options, maxBody int64, logger logging.Logger) *ProtonationHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ProtonationHandler{svc: svc, defaults: defaults, maxBody: maxBody, logger: logger}
}

// RegisterRoutes mounts POST /protonate.
func (h *ProtonationHandler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/protonate", h.Protonate)
}

// Protonate handles POST /protonate.
//
// A JSON body (Content-Type application/json) is answered with a
// ProtonateResponse.  Any other body is read as a raw PDB document, options
// come from ?name, ?flip and ?his, and the protonated document is returned
// as chemical/x-pdb with the run summary in X-Run-ID,
// X-Protonation-Outcome and X-Hydrogens-Added.
func (h *ProtonationHandler) Protonate(c *gin.Context) {
	if h.maxBody > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody)
	}

	if c.ContentType() == gin.MIMEJSON {
		h.protonateJSON(c)
		return
	}
	h.protonateRaw(c)
}

func (h *ProtonationHandler) protonateJSON(c *gin.Context) {
	var req ProtonateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if tooLarge(err) {
			h.writeTooLarge(c)
			return
		}
		writeAppError(c, errors.Wrap(err, errors.ErrCodeBadRequest, "invalid protonation request"))
		return
	}

	result, err := h.svc.ProtonatePDB(c.Request.Context(), structureName(req.Name), []byte(req.PDB), h.options(req.Flip, req.His))
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, ProtonateResponse{Run: result.Run, PDB: string(result.PDB)})
}

func (h *ProtonationHandler) protonateRaw(c *gin.Context) {
	flip, err := optionalBool(c, "flip")
	if err != nil {
		writeAppError(c, err)
		return
	}
	his, err := optionalBool(c, "his")
	if err != nil {
		writeAppError(c, err)
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		if tooLarge(err) {
			h.writeTooLarge(c)
			return
		}
		writeAppError(c, errors.Wrap(err, errors.ErrCodeBadRequest, "failed to read request body"))
		return
	}
	if len(body) == 0 {
		writeBadRequest(c, "request body must contain a PDB document")
		return
	}

	result, err := h.svc.ProtonatePDB(c.Request.Context(), structureName(c.Query("name")), body, h.options(flip, his))
	if result != nil && result.Run != nil {
		setRunHeaders(c, result.Run)
	}
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.Data(http.StatusOK, ContentTypePDB, result.PDB)
}

func (h *ProtonationHandler) options(flip, his *bool) reduce.Options {
	opts := h.defaults
	if flip != nil {
		opts.Flip = *flip
	}
	if his != nil {
		opts.Histidines = *his
	}
	return opts
}

func (h *ProtonationHandler) writeTooLarge(c *gin.Context) {
	_ = c.Error(errors.New(errors.ErrCodeBadRequest, "request body too large"))
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, ErrorResponse{
		Code:      errors.ErrCodeBadRequest.String(),
		Message:   "request body exceeds " + strconv.FormatInt(h.maxBody, 10) + " bytes",
		RequestID: middleware.GetRequestID(c),
	})
}

func setRunHeaders(c *gin.Context, run *domain.Run) {
	c.Header(middleware.HeaderRunID, run.ID)
	c.Header(middleware.HeaderOutcome, string(run.Outcome))
	c.Header(middleware.HeaderHydrogensAdded, strconv.Itoa(run.Added))
}

func structureName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultStructureName
	}
	return name
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return stderrors.As(err, &mbe)
}

//Personal.AI order the ending
