// Package serve speaks the scanner operations as newline-delimited JSON over
// a pair of streams.
package serve

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/praetorian-inc/tmscan"
	"github.com/praetorian-inc/tmscan/pkg/encode"
	"github.com/praetorian-inc/tmscan/pkg/patternset"
	"github.com/praetorian-inc/tmscan/pkg/types"
)

// Version is the server protocol version
const Version = "1.0.0"

// Server answers NDJSON requests against an engine
type Server struct {
	engine  *tmscan.Engine
	loader  *patternset.Loader
	logger  *slog.Logger
	encoder *json.Encoder
	decoder *json.Decoder
}

// NewServer creates a new streaming server
func NewServer(engine *tmscan.Engine, in io.Reader, out io.Writer) *Server {
	return &Server{
		engine:  engine,
		loader:  patternset.NewLoader(),
		logger:  slog.Default(),
		encoder: json.NewEncoder(out),
		decoder: json.NewDecoder(bufio.NewReader(in)),
	}
}

// SetLogger sets the logger used for request failures.
func (s *Server) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Run starts the server main loop
func (s *Server) Run(ctx context.Context) error {
	s.sendReady()

	reqChan := make(chan Request, 1)
	errChan := make(chan error, 1)

	go func() {
		for {
			var req Request
			if err := s.decoder.Decode(&req); err != nil {
				errChan <- err
				return
			}
			select {
			case reqChan <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Process requests until input closes or context cancels
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errChan:
			// Drain any pending requests before handling EOF
			for {
				select {
				case req := <-reqChan:
					if s.processRequest(req) {
						return nil
					}
				default:
					if err == io.EOF {
						return nil
					}
					s.sendError("decode", types.CodeBadRequest, err.Error())
					return nil
				}
			}
		case req := <-reqChan:
			if s.processRequest(req) {
				return nil
			}
		}
	}
}

// processRequest handles a single request and returns true if the server should exit
func (s *Server) processRequest(req Request) bool {
	switch req.Type {
	case "create_scanner":
		s.handleCreateScanner(req.Payload)
	case "find_next_match":
		s.handleFindNextMatch(req.Payload)
	case "destroy_scanner":
		s.handleDestroyScanner(req.Payload)
	case "stats":
		s.sendData("stats", s.engine.Stats())
	case "close":
		return true
	default:
		s.sendError("unknown", types.CodeBadRequest, "unknown request type: "+req.Type)
	}
	return false
}

func (s *Server) sendReady() {
	ready := ReadyData{Version: Version}
	if sets, err := s.loader.LoadBuiltinPatternSets(); err == nil {
		for _, ps := range sets {
			ready.PatternSets = append(ready.PatternSets, ps.ID)
		}
	}
	s.sendData("ready", ready)
}

func (s *Server) handleCreateScanner(payload json.RawMessage) {
	var p CreateScannerPayload
	if err := decodePayload(payload, &p); err != nil {
		s.sendError("create_scanner", types.CodeBadRequest, err.Error())
		return
	}

	defs := p.Patterns
	if len(defs) == 0 && p.PatternSet != "" {
		ps, err := s.loader.Builtin(p.PatternSet)
		if err != nil {
			s.sendError("create_scanner", types.CodeBadRequest, err.Error())
			return
		}
		defs = ps.Patterns
	}

	id, err := s.engine.CreateScanner(defs, p.MaxCacheSize)
	if err != nil {
		s.fail("create_scanner", err)
		return
	}
	s.sendData("create_scanner", ScannerData{ScannerID: id})
}

func (s *Server) handleFindNextMatch(payload json.RawMessage) {
	var p FindNextMatchPayload
	if err := decodePayload(payload, &p); err != nil {
		s.sendError("find_next_match", types.CodeBadRequest, err.Error())
		return
	}

	result, err := s.engine.FindNextMatchSync(p.ScannerID, p.Text, p.StartPosition)
	if err != nil {
		s.fail("find_next_match", err)
		return
	}
	s.sendData("find_next_match", encode.Match(result))
}

func (s *Server) handleDestroyScanner(payload json.RawMessage) {
	var p DestroyScannerPayload
	if err := decodePayload(payload, &p); err != nil {
		s.sendError("destroy_scanner", types.CodeBadRequest, err.Error())
		return
	}

	if err := s.engine.DestroyScanner(p.ScannerID); err != nil {
		s.fail("destroy_scanner", err)
		return
	}
	s.sendData("destroy_scanner", ScannerData{ScannerID: p.ScannerID})
}

func decodePayload(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return fmt.Errorf("payload is required")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

func (s *Server) sendData(reqType string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.sendError(reqType, types.CodeBadRequest, err.Error())
		return
	}
	s.encoder.Encode(Response{
		Success: true,
		Type:    reqType,
		Data:    data,
	})
}

// fail reports an engine error with its wire code.
func (s *Server) fail(reqType string, err error) {
	code := types.ErrorCode(err)
	s.logger.Debug("request failed", "type", reqType, "code", code, "error", err)
	s.sendError(reqType, code, err.Error())
}

func (s *Server) sendError(reqType, code, msg string) {
	s.encoder.Encode(Response{
		Success: false,
		Type:    reqType,
		Error:   msg,
		Code:    code,
	})
}
