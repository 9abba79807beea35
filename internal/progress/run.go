package progress

import (
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lakshaymaurya-felt/gitlab-cleaner/internal/artifacts"
)

// observer forwards engine events to a running program.
type observer struct {
	program *tea.Program
}

var _ artifacts.Observer = observer{}

func (o observer) ProjectStarted(project artifacts.Project) {
	o.program.Send(projectStartedMsg{project: project})
}

func (o observer) JobDone(job artifacts.Job, deleted bool, err error) {
	o.program.Send(jobDoneMsg{size: job.Size(), deleted: deleted, err: err})
}

func (o observer) ProjectEnded(report artifacts.ProjectReport) {
	o.program.Send(projectEndedMsg{report: report})
}

// Run displays a live progress line on out while work executes.
// work receives the Observer to hand over to artifacts.Run.
// The work error is returned once both work and the display are over.
func Run(out io.Writer, dryRun bool, work func(artifacts.Observer) error) error {
	program := tea.NewProgram(New(dryRun),
		tea.WithOutput(out),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)

	errc := make(chan error, 1)
	go func() {
		err := work(observer{program: program})
		program.Send(doneMsg{})
		errc <- err
	}()

	_, uiErr := program.Run()
	if uiErr != nil {
		// the display failed, the work still owns the result
		program.Kill()
		if err := <-errc; err != nil {
			return err
		}
		return fmt.Errorf("progress display: %w", uiErr)
	}
	return <-errc
}
