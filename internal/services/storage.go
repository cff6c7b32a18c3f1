package services

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"kodisha_back_end/internal/database"

	"github.com/minio/minio-go/v7"
)

// UploadQRCode pousse l'image PNG d'un QR de lien de réservation dans MinIO
// et retourne son URL publique
func UploadQRCode(ctx context.Context, objectName string, png []byte) (string, error) {
	if database.MinIO == nil {
		return "", fmt.Errorf("MinIO non initialisé")
	}

	bucket := os.Getenv("MINIO_BUCKET")
	_, err := database.MinIO.PutObject(ctx, bucket, objectName,
		bytes.NewReader(png), int64(len(png)),
		minio.PutObjectOptions{ContentType: "image/png"})
	if err != nil {
		return "", err
	}

	scheme := "http"
	if os.Getenv("MINIO_USE_SSL") == "true" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, os.Getenv("MINIO_ENDPOINT"), bucket, objectName), nil
}

// GenerateSignedURL génère une URL de téléchargement à durée limitée pour un
// objet du bucket (QR codes, reçus archivés)
func GenerateSignedURL(ctx context.Context, objectPath string, duration time.Duration) (string, error) {
	if database.MinIO == nil {
		return "", fmt.Errorf("MinIO non initialisé")
	}

	bucket := os.Getenv("MINIO_BUCKET")
	reqParams := make(url.Values)

	// Nettoie l'URL complète pour ne garder que le chemin relatif au bucket
	key := objectPath
	if idx := strings.Index(objectPath, "/"+bucket+"/"); idx >= 0 {
		key = objectPath[idx+len(bucket)+2:]
	}

	presignedURL, err := database.MinIO.PresignedGetObject(ctx, bucket, key, duration, reqParams)
	if err != nil {
		return "", err
	}
	return presignedURL.String(), nil
}
