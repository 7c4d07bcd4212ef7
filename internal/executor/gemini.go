package executor

// geminiArgs builds the argument list for the gemini CLI per spec.md
// §4.5: "gemini exec --json" plus an optional approval mode, with the
// prompt as the final positional argument.
func geminiArgs(opts Options) []string {
	args := []string{"exec", "--json"}
	if opts.ApprovalMode != "" {
		args = append(args, "--approval-mode", opts.ApprovalMode)
	}
	args = append(args, opts.Prompt)
	return args
}
