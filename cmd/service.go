package cmd

import (
	"context"
	"io"

	"github.com/schollz/progressbar/v3"

	"github.com/example/face-check/internal/usecase"
)

// faceService is what the terminal front-ends need from the use case.
type faceService interface {
	Register(ctx context.Context, imagePath, name string) usecase.Result
	VerifyWithProgress(ctx context.Context, imagePath string, progress usecase.ProgressFunc) usecase.Result
	ListUsers(ctx context.Context) ([]usecase.UserView, error)
}

// scanProgress renders verification scan progress on out. The bar is created
// on the first callback, once the number of registered faces is known.
func scanProgress(out io.Writer) (usecase.ProgressFunc, func()) {
	var bar *progressbar.ProgressBar
	progress := func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(out),
				progressbar.OptionSetDescription("Comparing with registered faces"),
				progressbar.OptionShowCount(),
				progressbar.OptionSetItsString("faces"),
				progressbar.OptionClearOnFinish(),
			)
		}
		_ = bar.Set(done)
	}
	finish := func() {
		if bar != nil {
			_ = bar.Finish()
		}
	}
	return progress, finish
}

func verifyWithBar(ctx context.Context, out io.Writer, svc faceService, imagePath string) usecase.Result {
	progress, finish := scanProgress(out)
	result := svc.VerifyWithProgress(ctx, imagePath, progress)
	finish()
	return result
}
