// Package athena adapts Amazon Athena to engine.Engine.
package athena

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"

	"github.com/asklake/asklake/internal/engine"
)

type API interface {
	StartQueryExecution(ctx context.Context, params *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, params *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
	GetQueryResults(ctx context.Context, params *athena.GetQueryResultsInput, optFns ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error)
}

type Engine struct {
	api API
}

var _ engine.Engine = (*Engine)(nil)

func New(ctx context.Context, region string) (*Engine, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(strings.TrimSpace(region)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewWithAPI(athena.NewFromConfig(awsCfg))
}

func NewWithAPI(api API) (*Engine, error) {
	if api == nil {
		return nil, fmt.Errorf("athena api is required")
	}
	return &Engine{api: api}, nil
}

func (e *Engine) StartQuery(ctx context.Context, submission engine.Submission) (string, error) {
	input := &athena.StartQueryExecutionInput{
		QueryString: aws.String(submission.SQL),
	}
	if db := strings.TrimSpace(submission.Target.Database); db != "" {
		input.QueryExecutionContext = &types.QueryExecutionContext{Database: aws.String(db)}
	}
	if location := strings.TrimSpace(submission.Target.OutputLocation); location != "" {
		input.ResultConfiguration = &types.ResultConfiguration{OutputLocation: aws.String(location)}
	}
	if wg := strings.TrimSpace(submission.Target.WorkGroup); wg != "" {
		input.WorkGroup = aws.String(wg)
	}

	out, err := e.api.StartQueryExecution(ctx, input)
	if err != nil {
		return "", fmt.Errorf("start query execution: %w", err)
	}
	id := aws.ToString(out.QueryExecutionId)
	if id == "" {
		return "", fmt.Errorf("start query execution returned no execution id")
	}
	return id, nil
}

func (e *Engine) QueryStatus(ctx context.Context, executionID string) (engine.Status, error) {
	out, err := e.api.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{QueryExecutionId: aws.String(executionID)})
	if err != nil {
		return engine.Status{}, fmt.Errorf("get query execution: %w", err)
	}
	if out.QueryExecution == nil || out.QueryExecution.Status == nil {
		return engine.Status{}, fmt.Errorf("query execution %s has no status", executionID)
	}
	status := out.QueryExecution.Status
	reason := aws.ToString(status.StateChangeReason)
	if reason == "" && status.AthenaError != nil {
		reason = aws.ToString(status.AthenaError.ErrorMessage)
	}
	return engine.Status{State: mapState(status.State), Reason: reason}, nil
}

func (e *Engine) QueryResults(ctx context.Context, executionID, nextToken string, maxResults int) (engine.Page, error) {
	input := &athena.GetQueryResultsInput{QueryExecutionId: aws.String(executionID)}
	if nextToken != "" {
		input.NextToken = aws.String(nextToken)
	}
	if maxResults > 0 {
		input.MaxResults = aws.Int32(int32(maxResults))
	}

	out, err := e.api.GetQueryResults(ctx, input)
	if err != nil {
		return engine.Page{}, fmt.Errorf("get query results: %w", err)
	}

	page := engine.Page{NextToken: aws.ToString(out.NextToken)}
	if out.ResultSet == nil {
		return page, nil
	}
	page.Rows = make([][]*string, 0, len(out.ResultSet.Rows))
	for _, row := range out.ResultSet.Rows {
		cells := make([]*string, len(row.Data))
		for i, datum := range row.Data {
			cells[i] = datum.VarCharValue
		}
		page.Rows = append(page.Rows, cells)
	}
	return page, nil
}

func mapState(state types.QueryExecutionState) engine.State {
	switch state {
	case types.QueryExecutionStateQueued:
		return engine.StateQueued
	case types.QueryExecutionStateRunning:
		return engine.StateRunning
	case types.QueryExecutionStateSucceeded:
		return engine.StateSucceeded
	case types.QueryExecutionStateFailed:
		return engine.StateFailed
	case types.QueryExecutionStateCancelled:
		return engine.StateCancelled
	default:
		return engine.State(state)
	}
}
