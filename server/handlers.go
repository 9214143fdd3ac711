package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/teranos/entres/errors"
	"github.com/teranos/entres/logger"
	"github.com/teranos/entres/resolution"
	"github.com/teranos/entres/resolution/input"
	"github.com/teranos/entres/resolution/job"
	"github.com/teranos/entres/resolution/model"
	"github.com/teranos/entres/telemetry"
	"github.com/teranos/entres/version"
)

// HandleResolution runs one job and responds with its result. A failed job
// answers with the status of its error.
func (s *Server) HandleResolution(w http.ResponseWriter, r *http.Request) {
	if s.getState() != ServerStateRunning {
		writeFailure(w, http.StatusServiceUnavailable, errors.New("server is shutting down"), false)
		return
	}

	entityType := r.PathValue("entity_type")
	ctx, span := telemetry.StartSpan(r.Context(), "entres.http.resolution",
		attribute.String("entres.entity_type", entityType))
	defer span.End()
	log := telemetry.WithTraceFields(ctx, s.logger.With(logger.FieldsFromContext(ctx)...))

	opts, err := s.jobOptions(r.URL.Query())
	if err != nil {
		writeFailure(w, statusFor(err), err, s.defaults.IncludeErrorTrace)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		err = errors.WrapInvalidRequest(err, "read request body")
		writeFailure(w, statusFor(err), err, opts.IncludeErrorTrace)
		return
	}

	j, err := s.prepareJob(ctx, entityType, body, opts)
	if err != nil {
		log.Infow("Resolution request rejected", logger.FieldEntityType, entityType,
			logger.FieldError, err.Error(), logger.FieldErrorType, string(errors.Classify(err)))
		writeFailure(w, statusFor(err), err, opts.IncludeErrorTrace)
		return
	}

	done := s.track()
	res := j.Execute(ctx)
	done()

	status := http.StatusOK
	if res.Failed {
		status = statusFor(res.Err)
		span.SetStatus(codes.Error, string(res.Termination))
	}
	span.SetAttributes(
		attribute.String("entres.job_id", res.JobID),
		attribute.Int("entres.hits", len(res.Hits)),
	)

	data, err := res.Marshal()
	if err != nil {
		log.Errorw("Failed to serialize result", logger.FieldJobID, res.JobID, logger.FieldError, err.Error())
		writeFailure(w, http.StatusInternalServerError, err, opts.IncludeErrorTrace)
		return
	}
	writeRaw(w, status, data)
}

// jobOptions layers request parameters over the server defaults
func (s *Server) jobOptions(params url.Values) (job.Options, error) {
	opts := s.defaults
	if err := opts.ApplyParams(params); err != nil {
		return job.Options{}, err
	}
	return opts, nil
}

// prepareJob resolves the model, parses the input, and creates the job
func (s *Server) prepareJob(ctx context.Context, entityType string, body []byte, opts job.Options, extra ...resolution.Observer) (*job.Job, error) {
	var m *model.Model
	if entityType != "" {
		if err := model.ValidateEntityType(entityType); err != nil {
			return nil, err
		}
		var err error
		if m, err = s.models.GetModel(ctx, entityType); err != nil {
			return nil, err
		}
	}

	in, err := input.Parse(body, m)
	if err != nil {
		return nil, err
	}
	return job.New(job.Config{
		EntityType: entityType,
		Input:      in,
		Store:      s.store,
		Options:    opts,
		Logger:     telemetry.WithTraceFields(ctx, s.logger.With(logger.FieldsFromContext(ctx)...)),
		Observers:  s.observers(extra...),
	})
}

// HandleListModels lists the entity types with a model
func (s *Server) HandleListModels(w http.ResponseWriter, r *http.Request) {
	types, err := s.models.ListModels(r.Context())
	if err != nil {
		writeFailure(w, statusFor(err), err, false)
		return
	}
	if types == nil {
		types = []string{}
	}
	_ = writeJSON(w, http.StatusOK, map[string]interface{}{"entity_types": types})
}

// HandleModel reads, writes, or deletes the model of one entity type
func (s *Server) HandleModel(w http.ResponseWriter, r *http.Request) {
	entityType := r.PathValue("entity_type")
	if err := model.ValidateEntityType(entityType); err != nil {
		writeFailure(w, statusFor(err), err, false)
		return
	}
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		m, err := s.models.GetModel(ctx, entityType)
		if err != nil {
			writeFailure(w, statusFor(err), err, false)
			return
		}
		data, err := m.MarshalJSON()
		if err != nil {
			writeFailure(w, http.StatusInternalServerError, err, false)
			return
		}
		writeRaw(w, http.StatusOK, data)

	case http.MethodPut, http.MethodPost:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
		if err != nil {
			err = errors.WrapInvalidRequest(err, "read request body")
			writeFailure(w, statusFor(err), err, false)
			return
		}
		m, err := parseModelBody(body)
		if err != nil {
			writeFailure(w, statusFor(err), err, false)
			return
		}
		if err := s.models.PutModel(ctx, entityType, m); err != nil {
			writeFailure(w, statusFor(err), err, false)
			return
		}
		s.logger.Infow("Entity model saved", logger.FieldEntityType, entityType)
		_ = writeJSON(w, http.StatusOK, map[string]interface{}{"entity_type": entityType, "result": "saved"})

	case http.MethodDelete:
		if err := s.models.DeleteModel(ctx, entityType); err != nil {
			writeFailure(w, statusFor(err), err, false)
			return
		}
		s.logger.Infow("Entity model deleted", logger.FieldEntityType, entityType)
		_ = writeJSON(w, http.StatusOK, map[string]interface{}{"entity_type": entityType, "result": "deleted"})

	default:
		writeFailure(w, http.StatusMethodNotAllowed, errors.Newf("method %s not allowed", r.Method), false)
	}
}

// parseModelBody accepts a model as JSON, or as YAML when the body is not a JSON object
func parseModelBody(body []byte) (*model.Model, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, input.ErrMissingBody
	}
	if trimmed[0] == '{' {
		return model.Parse(trimmed)
	}
	return model.ParseYAML(trimmed)
}

// HandleHealth reports liveness, build info, and running jobs
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	info := version.Get()
	_ = writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      stateString(s.getState()),
		"version":     info.Version,
		"commit":      info.CommitHash,
		"build_time":  info.BuildTime,
		"active_jobs": s.activeJobs.Load(),
	})
}
