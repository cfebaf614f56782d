package engine

// Built-in workflow types.
const (
	WorkflowFullStackApp    = "full_stack_app"
	WorkflowSchemaDesign    = "schema_design_only"
	WorkflowQueryGeneration = "query_generation"
	WorkflowQAValidation    = "qa_validation"
)

// builtinTemplates returns the step templates registered on every
// engine. Dependencies reference step ids within the same template.
func builtinTemplates() map[string][]StepDefinition {
	return map[string][]StepDefinition{
		WorkflowFullStackApp: {
			{ID: "plan", Type: "create_project_plan", Agent: "pm", Description: "Draft the project plan"},
			{ID: "schema", Type: "design_schema", Agent: "schema", Description: "Design the database schema", DependsOn: []string{"plan"}},
			{ID: "ddl", Type: "generate_ddl", Agent: "schema", Description: "Generate DDL for the schema", DependsOn: []string{"schema"}},
			{ID: "queries", Type: "generate_queries", Agent: "query", Description: "Generate application queries", DependsOn: []string{"schema"}},
			{ID: "suite", Type: "create_test_suite", Agent: "qa", Description: "Create the test suite", DependsOn: []string{"plan"}},
			{ID: "run_tests", Type: "run_test_suite", Agent: "qa", Description: "Run the test suite", DependsOn: []string{"queries", "suite"}},
		},
		WorkflowSchemaDesign: {
			{ID: "design", Type: "design_schema", Agent: "schema", Description: "Design the database schema"},
			{ID: "ddl", Type: "generate_ddl", Agent: "schema", Description: "Generate DDL for the schema", DependsOn: []string{"design"}},
			{ID: "validate", Type: "validate_schema", Agent: "schema", Description: "Validate the generated DDL", DependsOn: []string{"ddl"}},
		},
		WorkflowQueryGeneration: {
			{ID: "queries", Type: "generate_queries", Agent: "query", Description: "Generate application queries"},
			{ID: "validate", Type: "validate_queries", Agent: "query", Description: "Validate the generated queries", DependsOn: []string{"queries"}},
		},
		WorkflowQAValidation: {
			{ID: "suite", Type: "create_test_suite", Agent: "qa", Description: "Create the test suite"},
			{ID: "run", Type: "run_test_suite", Agent: "qa", Description: "Run the test suite", DependsOn: []string{"suite"}},
		},
	}
}
