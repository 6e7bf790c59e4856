package gateway

import (
	"context"

	"github.com/emprius/emprius-social-backend/storage"
)

// UploadFile stores a file.
func (g *Gateway) UploadFile(ctx context.Context, upload Upload) (*storage.File, error) {
	file, err := g.files.Upload(ctx, upload.Name, upload.ContentType, upload.Data)
	if err != nil {
		return nil, translate("upload file", err)
	}
	return file, nil
}

// GetFilePreview returns the preview URL of a stored file, rendered with the default options.
func (g *Gateway) GetFilePreview(ctx context.Context, fileID string) (string, error) {
	u, err := storage.PreviewURL(ctx, g.files, g.publicURL, fileID, storage.DefaultPreviewOptions)
	if err != nil {
		return "", translate("get file preview", err)
	}
	return u, nil
}

// DeleteFile removes a stored file.
func (g *Gateway) DeleteFile(ctx context.Context, fileID string) error {
	return translate("delete file", g.files.Delete(ctx, fileID))
}

// OpenFile returns a stored file and its content.
func (g *Gateway) OpenFile(ctx context.Context, fileID string) (*storage.File, []byte, error) {
	file, data, err := g.files.Open(ctx, fileID)
	if err != nil {
		return nil, nil, translate("open file", err)
	}
	return file, data, nil
}

// RenderPreview returns the JPEG preview of a stored image.
func (g *Gateway) RenderPreview(ctx context.Context, fileID string, opts storage.PreviewOptions) ([]byte, error) {
	const op = "render preview"
	if err := opts.Validate(); err != nil {
		return nil, translate(op, err)
	}
	_, data, err := g.files.Open(ctx, fileID)
	if err != nil {
		return nil, translate(op, err)
	}
	preview, err := storage.Preview(data, opts)
	if err != nil {
		return nil, validationError(op, "%v", err)
	}
	return preview, nil
}
