package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/aashiqmuhamed/refusalbench-studio/internal/bench"
	"github.com/aashiqmuhamed/refusalbench-studio/internal/orchestrator"
)

// verifierSlots is the number of verifier columns the results table
// carries. Extra verifiers beyond this are dropped at persistence time.
const verifierSlots = 4

// Store persists perturbation results and workflow runs in Postgres.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open connects to Postgres and verifies the connection.
func Open(databaseURL string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db.SetMaxOpenConns(15)
	db.SetMaxIdleConns(5)
	return &Store{db: db, log: log}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// EnsureSchema creates the result tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS perturbation_results (
			id UUID PRIMARY KEY,
			original_query TEXT,
			original_context TEXT,
			original_answers TEXT,
			perturbation_class VARCHAR(128),
			intensity VARCHAR(128),
			perturbed_query TEXT,
			perturbed_context TEXT,
			lever_selected VARCHAR(128),
			implementation_reasoning TEXT,
			intensity_achieved VARCHAR(128),
			answer_constraint_satisfied TEXT,
			expected_rag_behavior TEXT,
			parsing_successful BOOLEAN,
			generator_model TEXT,
			generator_display_name VARCHAR(256),
			verifier_a_model TEXT,
			verifier_a_display_name VARCHAR(256),
			verifier_a_successful BOOLEAN,
			verifier_a_response TEXT,
			verifier_b_model TEXT,
			verifier_b_display_name VARCHAR(256),
			verifier_b_successful BOOLEAN,
			verifier_b_response TEXT,
			verifier_c_model TEXT,
			verifier_c_display_name VARCHAR(256),
			verifier_c_successful BOOLEAN,
			verifier_c_response TEXT,
			verifier_d_model TEXT,
			verifier_d_display_name VARCHAR(256),
			verifier_d_successful BOOLEAN,
			verifier_d_response TEXT,
			last_updated TIMESTAMP DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS workflow_runs (
			id UUID PRIMARY KEY,
			orchestrator_model_id VARCHAR(256),
			execution_model_id VARCHAR(256),
			workflow TEXT,
			final_output TEXT,
			final_decision VARCHAR(256),
			trace TEXT,
			created_at TIMESTAMP DEFAULT NOW()
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// verifierColumn is the flattened per-slot shape of a verification result.
type verifierColumn struct {
	Model       string
	DisplayName string
	Successful  bool
	Response    string
}

// verifierColumns maps verification results onto the fixed column slots,
// padding or truncating to verifierSlots.
func verifierColumns(verifications []bench.Verification) [verifierSlots]verifierColumn {
	var out [verifierSlots]verifierColumn
	for i := 0; i < verifierSlots && i < len(verifications); i++ {
		v := verifications[i]
		response := "{}"
		if v.VerificationResponse != nil {
			if raw, err := json.Marshal(v.VerificationResponse); err == nil {
				response = string(raw)
			}
		}
		out[i] = verifierColumn{
			Model:       v.VerificationModel,
			DisplayName: v.VerificationDisplayName,
			Successful:  v.VerificationSuccessful,
			Response:    response,
		}
	}
	return out
}

// SavePerturbationResult stores a perturbation with its verifier verdicts.
func (s *Store) SavePerturbationResult(ctx context.Context, p bench.Perturbation, verifications []bench.Verification) (uuid.UUID, error) {
	id := uuid.New()

	answers, err := json.Marshal(p.OriginalAnswers)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode answers: %w", err)
	}
	cols := verifierColumns(verifications)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO perturbation_results (
			id, original_query, original_context, original_answers,
			perturbation_class, intensity, perturbed_query, perturbed_context,
			lever_selected, implementation_reasoning, intensity_achieved,
			answer_constraint_satisfied, expected_rag_behavior, parsing_successful,
			generator_model, generator_display_name,
			verifier_a_model, verifier_a_display_name, verifier_a_successful, verifier_a_response,
			verifier_b_model, verifier_b_display_name, verifier_b_successful, verifier_b_response,
			verifier_c_model, verifier_c_display_name, verifier_c_successful, verifier_c_response,
			verifier_d_model, verifier_d_display_name, verifier_d_successful, verifier_d_response
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32
		)`,
		id, p.OriginalQuery, p.OriginalContext, string(answers),
		p.PerturbationClass, p.Intensity, p.PerturbedQuery, p.PerturbedContext,
		p.LeverSelected, p.ImplementationReasoning, p.IntensityAchieved,
		p.AnswerConstraintSatisfied, p.ExpectedRAGBehavior, p.GenerationSuccessful,
		p.GeneratorModel, p.GeneratorDisplayName,
		cols[0].Model, cols[0].DisplayName, cols[0].Successful, cols[0].Response,
		cols[1].Model, cols[1].DisplayName, cols[1].Successful, cols[1].Response,
		cols[2].Model, cols[2].DisplayName, cols[2].Successful, cols[2].Response,
		cols[3].Model, cols[3].DisplayName, cols[3].Successful, cols[3].Response,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert perturbation result: %w", err)
	}

	s.log.Info("stored perturbation result", zap.String("id", id.String()))
	return id, nil
}

// WorkflowRunRecord is the persisted form of one orchestrator run. The
// trace is stored as an opaque JSON blob.
type WorkflowRunRecord struct {
	OrchestratorModelID string
	ExecutionModelID    string
	Workflow            string
	FinalOutput         string
	FinalDecision       string
	Trace               []orchestrator.TraceEntry
}

// encodeTrace serializes the trace for the blob column. An empty trace
// stores an empty string, not "null".
func encodeTrace(trace []orchestrator.TraceEntry) (string, error) {
	if len(trace) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(trace)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// SaveWorkflowRun stores one orchestrator run.
func (s *Store) SaveWorkflowRun(ctx context.Context, rec WorkflowRunRecord) (uuid.UUID, error) {
	id := uuid.New()

	trace, err := encodeTrace(rec.Trace)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode trace: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_runs (
			id, orchestrator_model_id, execution_model_id,
			workflow, final_output, final_decision, trace
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, rec.OrchestratorModelID, rec.ExecutionModelID,
		rec.Workflow, rec.FinalOutput, rec.FinalDecision, trace,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert workflow run: %w", err)
	}

	s.log.Info("stored workflow run", zap.String("id", id.String()))
	return id, nil
}
