package executor

// codexArgs builds the argument list for the codex CLI. The teacher's
// internal/agent/codex.go uses a bare "exec <prompt> --json"; spec.md
// §4.5 asks for the sandboxed, fully-automatic variant plus optional
// resume and model flags, with the prompt as the final positional arg.
func codexArgs(opts Options) []string {
	args := []string{"exec", "--json", "--sandbox", "danger-full-access", "--full-auto"}

	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if opts.ResumeID != "" {
		args = append(args, "resume", "--last")
	}
	args = append(args, opts.Prompt)
	return args
}
