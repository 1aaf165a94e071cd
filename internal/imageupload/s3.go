package imageupload

import (
	"bytes"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// S3Backend stores uploaded images in a bucket, fleshing out the teacher's
// storage/s3.go stub (which had SaveCanvasState return an empty string and
// nil unconditionally).
type S3Backend struct {
	client *s3.S3
	bucket string
	region string
}

func NewS3Backend(region, bucket string) (*S3Backend, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, err
	}
	return &S3Backend{client: s3.New(sess), bucket: bucket, region: region}, nil
}

func (b *S3Backend) Store(filename string, data []byte) (string, error) {
	_, err := b.client.PutObject(&s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(filename),
		Body:   bytes.NewReader(data),
		ACL:    aws.String("public-read"),
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", b.bucket, b.region, filename), nil
}
