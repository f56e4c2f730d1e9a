// Command governance is a local front end to the orchestration engine.
//
// Usage:
//
//	# Score a request without running anything
//	governance analyze "Urgent launch for Pfizer" --tool midjourney
//
//	# Run a request against capabilities defined in YAML
//	governance orchestrate "Review this post" --capabilities capabilities.yaml
//
//	# Show the workflow template table
//	governance templates --templates templates.yaml
package main

func main() {
	Execute()
}
