package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/fuslink/fuslink/internal/archive"
	"github.com/fuslink/fuslink/internal/stream"
)

// newDownloadCmd downloads a firmware binary, decrypting it on the fly
// unless told otherwise.
func newDownloadCmd() *cobra.Command {
	var (
		firmwareFlag string
		outputFlag   string
		noDecrypt    bool
		resume       bool
		s3Bucket     string
		s3Prefix     string
		s3Region     string
	)

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download a firmware binary",
		Long: `Downloads a firmware binary, decrypting it on the fly. Without
--firmware the latest published version is fetched.

--resume continues a partial download and implies --no-decrypt: the
cipher stream can only be deciphered from the first byte, so resumable
downloads keep the encrypted form on disk.`,
		Example: `  fuslink download -r EUX -m SM-G960F
  fuslink download -r EUX -m SM-G960F --no-decrypt --resume
  fuslink download -r EUX -m SM-G960F --s3-bucket firmware-mirror`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp("cli")
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if resume && !noDecrypt {
				return errors.New("--resume requires --no-decrypt; decryption must start from the first byte")
			}

			fw, err := a.resolveFirmware(ctx, firmwareFlag)
			if err != nil {
				return err
			}
			req, err := a.binaryInfoRequest(fw)
			if err != nil {
				return err
			}

			meta, sess, err := a.fus.RetrieveBinaryInfo(ctx, req)
			if err != nil {
				return err
			}

			outPath := outputFlag
			if outPath == "" {
				if noDecrypt {
					outPath = meta.Filename
				} else {
					outPath = meta.DecryptedFilename()
				}
			}

			var offset int64
			if resume {
				if info, err := os.Stat(outPath); err == nil {
					offset = info.Size()
				}
			}
			if offset >= meta.Size && meta.Size > 0 {
				logger.Info().Str("file", outPath).Msg("already complete")
				return mirrorIfRequested(cmd, a, outPath, s3Bucket, s3Prefix, s3Region)
			}

			streamReq := stream.Request{
				RemotePath:  meta.RemotePath(),
				RangeHeader: fmt.Sprintf("bytes=%d-", offset),
				Session:     sess,
			}
			if !noDecrypt {
				streamReq.DecryptKey = meta.DecryptKey
			}

			pipe := stream.NewPipeline(a.fus, logger, a.cfg.ChunkSize)
			dl, err := pipe.Open(ctx, streamReq)
			if err != nil {
				return err
			}
			defer dl.Body.Close()

			flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
			if offset > 0 {
				flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
			}
			out, err := os.OpenFile(outPath, flags, 0o644)
			if err != nil {
				return err
			}
			defer out.Close()

			bar := progressbar.DefaultBytes(meta.Size, filepath.Base(outPath))
			_ = bar.Set64(offset)

			if _, err := io.Copy(io.MultiWriter(out, bar), dl.Body); err != nil {
				return fmt.Errorf("download %s: %w", meta.Filename, err)
			}
			_ = bar.Finish()
			if err := out.Close(); err != nil {
				return err
			}

			logger.Info().Str("file", outPath).Str("firmware", fw).Msg("download complete")
			return mirrorIfRequested(cmd, a, outPath, s3Bucket, s3Prefix, s3Region)
		},
	}

	addDeviceFlags(cmd)
	cmd.Flags().StringVarP(&firmwareFlag, "firmware", "f", "", "Explicit firmware version (default: latest)")
	cmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Output file path (default: binary filename)")
	cmd.Flags().BoolVar(&noDecrypt, "no-decrypt", false, "Keep the encrypted form instead of decrypting on the fly")
	cmd.Flags().BoolVar(&resume, "resume", false, "Continue a partial download (implies --no-decrypt)")
	cmd.Flags().StringVar(&imeiFlag, "imei", "", "Device IMEI or 8-digit TAC (default: generated from the built-in TAC table)")
	cmd.Flags().StringVar(&s3Bucket, "s3-bucket", "", "Mirror the finished file into this S3 bucket")
	cmd.Flags().StringVar(&s3Prefix, "s3-prefix", "firmware", "Key prefix for mirrored files")
	cmd.Flags().StringVar(&s3Region, "s3-region", "", "AWS region for the mirror bucket (default: credential chain)")
	return cmd
}

// mirrorIfRequested uploads the finished file when an S3 bucket was
// named, and is a no-op otherwise.
func mirrorIfRequested(cmd *cobra.Command, a *app, localPath, bucket, prefix, region string) error {
	if bucket == "" {
		return nil
	}
	mirror, err := archive.NewS3Mirror(cmd.Context(), archive.Options{
		Bucket: bucket,
		Prefix: prefix,
		Region: region,
	}, a.http, logger)
	if err != nil {
		return err
	}
	return mirror.Upload(cmd.Context(), localPath)
}
