package s3_helper

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/danthegoodman1/recollect/gologger"
	"github.com/danthegoodman1/recollect/utils"
)

var logger = gologger.NewLogger()

func newSession() (*session.Session, error) {
	s3Config := &aws.Config{
		Region:      aws.String(utils.AWS_DEFAULT_REGION),
		Credentials: credentials.NewEnvCredentials(),
	}
	if utils.S3_ENDPOINT != "" {
		s3Config.Endpoint = aws.String(utils.S3_ENDPOINT)
		s3Config.S3ForcePathStyle = aws.Bool(true)
	}
	return session.NewSession(s3Config)
}

// WriteBytesToS3 uploads byteStream to the configured bucket under key.
func WriteBytesToS3(ctx context.Context, key string, byteStream io.Reader, contentType *string) (*s3manager.UploadOutput, error) {
	s3Session, err := newSession()
	if err != nil {
		return nil, fmt.Errorf("error making new session: %w", err)
	}

	uploader := s3manager.NewUploader(s3Session)

	s := time.Now()
	output, err := uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(utils.S3_BUCKET_NAME),
		Key:         aws.String(key),
		Body:        byteStream,
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("error uploading to s3: %w", err)
	}

	d := time.Since(s)
	logger.Debug().Str("key", key).Str("duration", d.String()).Msg("uploaded file to s3")

	return output, nil
}

// ReadBytesFromS3 downloads a whole object from the configured bucket.
func ReadBytesFromS3(ctx context.Context, key string) ([]byte, error) {
	s3Session, err := newSession()
	if err != nil {
		return nil, fmt.Errorf("error making new session: %w", err)
	}

	downloader := s3manager.NewDownloader(s3Session)

	buf := &aws.WriteAtBuffer{}

	s := time.Now()
	_, err = downloader.DownloadWithContext(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(utils.S3_BUCKET_NAME),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("error downloading from s3: %w", err)
	}

	d := time.Since(s)
	logger.Debug().Str("key", key).Int("bytes", len(buf.Bytes())).Str("duration", d.String()).Msg("downloaded file from s3")

	return buf.Bytes(), nil
}
