package importer

import (
	"context"
	"fmt"

	"github.com/mattergrate/mattergrate/internal/mattermost"
)

// transferAttachments moves a post's files to the target room. Each file is
// uploaded under its original name when both metadata and content fetches
// succeed; when content fetch or upload fails after metadata succeeded, the
// file degrades to a link back to the source. A failed metadata fetch skips
// the file entirely (logged).
//
// Returned slices: names of uploaded files, and markdown fallback links to
// append to the message body. Degradation is expected behavior, not a
// per-message error.
func (i *Importer) transferAttachments(ctx context.Context, roomID string, post mattermost.Post) (uploaded, fallbacks []string) {
	for _, fileID := range post.FileIDs {
		info, err := i.source.FileInfo(ctx, fileID)
		if err != nil {
			i.logger.Warn("Failed to fetch attachment metadata, skipping file",
				"post_id", post.ID, "file_id", fileID, "error", err)
			continue
		}

		data, err := i.source.File(ctx, fileID)
		if err != nil {
			i.logger.Warn("Failed to download attachment, falling back to link",
				"post_id", post.ID, "file_id", fileID, "name", info.Name, "error", err)
			fallbacks = append(fallbacks, fallbackLink(info.Name, i.source.FileURL(fileID)))
			continue
		}

		if err := i.target.UploadFile(ctx, roomID, info.Name, data); err != nil {
			i.logger.Warn("Failed to upload attachment, falling back to link",
				"post_id", post.ID, "file_id", fileID, "name", info.Name, "error", err)
			fallbacks = append(fallbacks, fallbackLink(info.Name, i.source.FileURL(fileID)))
			continue
		}

		uploaded = append(uploaded, info.Name)
	}

	return uploaded, fallbacks
}

func fallbackLink(name, url string) string {
	return fmt.Sprintf("**Attachment (link):** [%s](%s)", name, url)
}
