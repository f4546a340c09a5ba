// Package assemble integrates the external assembler binary so workers
// can run video assembly and observe structured progress updates.
//
// It exposes a Runner interface, a CLI implementation that shells out to
// the assembler with the job payload on stdin, and the canonical stage
// vocabulary shared by the assembler and the progress displays. Tests
// can swap in fakes to avoid executing a real assembler while still
// exercising worker behaviour.
package assemble
