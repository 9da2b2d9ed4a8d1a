package composer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const silence = "anullsrc=channel_layout=stereo:sample_rate=44100"

type mediaInfo struct {
	Width    int
	Height   int
	HasAudio bool
	Duration float64
}

type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (c *Composer) probe(ctx context.Context, path string) (*mediaInfo, error) {
	out, err := c.runner.Run(ctx, c.cfg.FFprobePath,
		"-v", "error",
		"-show_entries", "stream=codec_type,width,height:format=duration",
		"-of", "json",
		path,
	)
	if err != nil {
		return nil, err
	}
	return parseProbe(out)
}

func parseProbe(data []byte) (*mediaInfo, error) {
	var probe probeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode probe output: %w", err)
	}

	info := &mediaInfo{}
	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			if info.Width == 0 {
				info.Width, info.Height = stream.Width, stream.Height
			}
		case "audio":
			info.HasAudio = true
		}
	}
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("no video stream")
	}
	info.Duration, _ = strconv.ParseFloat(probe.Format.Duration, 64)
	return info, nil
}

// concatArgs joins hook before raw. The hook is scaled to cover the raw
// frame and cropped to exactly its size so both segments share geometry.
// Segments without audio get generated silence of the same length.
func concatArgs(hookPath string, hook *mediaInfo, rawPath string, raw *mediaInfo, output string) []string {
	args := []string{"-y", "-i", hookPath, "-i", rawPath}

	next := 2
	audioLabel := func(index int, info *mediaInfo) string {
		if info.HasAudio {
			return fmt.Sprintf("[%d:a]", index)
		}
		args = append(args, "-f", "lavfi", "-t", formatSeconds(info.Duration), "-i", silence)
		label := fmt.Sprintf("[%d:a]", next)
		next++
		return label
	}
	hookAudio := audioLabel(0, hook)
	rawAudio := audioLabel(1, raw)

	filter := strings.Join([]string{
		fmt.Sprintf("[0:v]scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,setsar=1[hv]",
			raw.Width, raw.Height, raw.Width, raw.Height),
		"[1:v]setsar=1[mv]",
		fmt.Sprintf("[hv]%s[mv]%sconcat=n=2:v=1:a=1[v][a]", hookAudio, rawAudio),
	}, ";")

	args = append(args,
		"-filter_complex", filter,
		"-map", "[v]",
		"-map", "[a]",
	)
	return append(args, encodeArgs(output)...)
}

// overlayArgs draws the hook text over the first two seconds of raw.
func overlayArgs(rawPath string, raw *mediaInfo, textFile, output string) []string {
	drawtext := "drawtext=textfile=" + escapeFilterPath(textFile) +
		":expansion=none" +
		":fontsize=72:fontcolor=white:bordercolor=black:borderw=4" +
		":x=(w-text_w)/2:y=(h-text_h)/2-150" +
		":enable='between(t,0,2)'"

	args := []string{"-y", "-i", rawPath, "-vf", drawtext}
	if raw.HasAudio {
		args = append(args, "-map", "0:v:0", "-map", "0:a:0")
	}
	return append(args, encodeArgs(output)...)
}

func encodeArgs(output string) []string {
	return []string{
		"-c:v", "libx264",
		"-c:a", "aac",
		"-movflags", "+faststart",
		output,
	}
}

// escapeFilterPath escapes characters special to filter option values.
func escapeFilterPath(path string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`, `,`, `\,`, `;`, `\;`)
	return r.Replace(path)
}

func formatSeconds(d float64) string {
	if d <= 0 {
		d = 2
	}
	return strconv.FormatFloat(d, 'f', 3, 64)
}
