package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskStatus tracks one in-flight upload
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskUploading TaskStatus = "uploading"
	TaskDone      TaskStatus = "done"
	TaskFailed    TaskStatus = "failed"
)

// Task is the per-file upload state surfaced to the rendering layer,
// which shows one placeholder row per task key.
type Task struct {
	Key      string
	FileName string
	Status   TaskStatus
	Err      error
}

// File is the upload input
type File struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.Reader
}

// Uploader transfers one file to the backend. Implementations cover a
// direct multipart endpoint and a presign/transfer/commit sequence;
// the coordinator does not care which.
type Uploader interface {
	Upload(ctx context.Context, file File) error
}

// TaskListener observes task state changes
type TaskListener func(Task)

// Coordinator runs concurrent file uploads, each tracked by its own
// task key. Successful uploads remove the task; the resulting message
// arrives through the normal transport path rather than being
// synthesized locally, which avoids duplicate-message risk. Failures
// are surfaced per file and never retried automatically.
type Coordinator struct {
	logger   *zap.Logger
	uploader Uploader
	onChange TaskListener

	mu    sync.Mutex
	tasks map[string]*Task
}

// NewCoordinator creates an upload coordinator. onChange may be nil.
func NewCoordinator(logger *zap.Logger, uploader Uploader, onChange TaskListener) *Coordinator {
	return &Coordinator{
		logger:   logger,
		uploader: uploader,
		onChange: onChange,
		tasks:    make(map[string]*Task),
	}
}

// Upload starts an asynchronous upload and returns its task key
func (c *Coordinator) Upload(ctx context.Context, file File) string {
	key := fmt.Sprintf("%s-%d", file.Name, time.Now().UnixMilli())
	task := &Task{Key: key, FileName: file.Name, Status: TaskUploading}

	c.mu.Lock()
	c.tasks[key] = task
	c.mu.Unlock()
	c.emit(*task)

	go c.run(ctx, key, file)
	return key
}

func (c *Coordinator) run(ctx context.Context, key string, file File) {
	if cl, ok := file.Content.(io.Closer); ok {
		defer cl.Close()
	}
	err := c.uploader.Upload(ctx, file)

	c.mu.Lock()
	task, ok := c.tasks[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	if err != nil {
		task.Status = TaskFailed
		task.Err = err
	} else {
		delete(c.tasks, key)
	}
	snapshot := *task
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("attachment upload failed",
			zap.String("file", file.Name), zap.Error(err))
		snapshot.Status = TaskFailed
	} else {
		c.logger.Info("attachment uploaded", zap.String("file", file.Name))
		snapshot.Status = TaskDone
	}
	c.emit(snapshot)
}

// Tasks returns a snapshot of the in-flight and failed uploads
func (c *Coordinator) Tasks() []Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Task, 0, len(c.tasks))
	for _, t := range c.tasks {
		out = append(out, *t)
	}
	return out
}

// Dismiss removes a failed task from the tracking set
func (c *Coordinator) Dismiss(key string) {
	c.mu.Lock()
	delete(c.tasks, key)
	c.mu.Unlock()
}

func (c *Coordinator) emit(t Task) {
	if c.onChange != nil {
		c.onChange(t)
	}
}

// MultipartUploader posts the file directly to a single multipart
// endpoint, the simplest backend collaborator shape.
type MultipartUploader struct {
	Endpoint  string
	ClientKey string
	SessionID func() string
	HTTP      *http.Client
}

// Upload sends the file as a multipart form
func (u *MultipartUploader) Upload(ctx context.Context, file File) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", file.Name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file.Content); err != nil {
		return fmt.Errorf("buffer file: %w", err)
	}
	_ = w.WriteField("client_key", u.ClientKey)
	if u.SessionID != nil {
		_ = w.WriteField("session_id", u.SessionID())
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.Endpoint, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	client := u.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("upload returned status %d", resp.StatusCode)
	}
	return nil
}

// Target is where a presigned upload sends its bytes
type Target struct {
	URL    string
	Fields map[string]string
}

// TargetProvider implements the two pluggable steps of the
// presign-then-upload-then-commit flow.
type TargetProvider interface {
	ObtainTarget(ctx context.Context, file File) (Target, error)
	Commit(ctx context.Context, file File, target Target) error
}

// PresignUploader transfers bytes to a presigned target, then commits
// the attachment metadata.
type PresignUploader struct {
	Provider TargetProvider
	HTTP     *http.Client
}

// Upload runs the obtain/transfer/commit sequence
func (u *PresignUploader) Upload(ctx context.Context, file File) error {
	target, err := u.Provider.ObtainTarget(ctx, file)
	if err != nil {
		return fmt.Errorf("obtain upload target: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target.URL, file.Content)
	if err != nil {
		return err
	}
	if ct := file.ContentType; ct != "" {
		req.Header.Set("Content-Type", ct)
	}
	for k, v := range target.Fields {
		req.Header.Set(k, v)
	}

	client := u.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("transfer: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("transfer returned status %d", resp.StatusCode)
	}

	if err := u.Provider.Commit(ctx, file, target); err != nil {
		return fmt.Errorf("commit attachment: %w", err)
	}
	return nil
}
