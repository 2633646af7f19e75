package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"civic-issue-system/pkg/middleware"
	"civic-issue-system/pkg/response"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const maxUploadSize = 10 << 20 // 10 MiB

var (
	storage        *minio.Client
	bucketName     string
	publicEndpoint string
)

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".mp3":  true,
	".wav":  true,
	".ogg":  true,
	".m4a":  true,
}

func main() {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:9000"
	}
	accessKey := os.Getenv("MINIO_ACCESS_KEY")
	if accessKey == "" {
		accessKey = "minioadmin"
	}
	secretKey := os.Getenv("MINIO_SECRET_KEY")
	if secretKey == "" {
		secretKey = "minioadmin"
	}
	bucketName = os.Getenv("MINIO_BUCKET")
	if bucketName == "" {
		bucketName = "report-media"
	}
	publicEndpoint = os.Getenv("MINIO_PUBLIC_URL")
	if publicEndpoint == "" {
		publicEndpoint = "http://" + endpoint
	}

	var err error
	storage, err = minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: os.Getenv("MINIO_USE_SSL") == "true",
	})
	if err != nil {
		log.Fatalf("[ERROR] Failed to create MinIO client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	exists, err := storage.BucketExists(ctx, bucketName)
	if err != nil {
		log.Fatalf("[ERROR] Failed to check bucket: %v", err)
	}
	if !exists {
		if err := storage.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			log.Fatalf("[ERROR] Failed to create bucket: %v", err)
		}
		log.Printf("[OK] Bucket '%s' created", bucketName)
	}

	middleware.RegisterMetrics()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/media/upload", middleware.AuthMiddleware(uploadHandler))
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/metrics", middleware.GetMetricsHandler())

	handler := middleware.TraceMiddleware(
		middleware.MetricsMiddleware(
			middleware.LoggerMiddleware(mux),
		),
	)

	port := os.Getenv("MEDIA_PORT")
	if port == "" {
		port = "8083"
	}

	log.Printf("[INFO] Media Service running on port :%s", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatalf("[ERROR] Server failed: %v", err)
	}
}

// uploadHandler stores one media file and returns its opaque URL. Reports
// reference media only by URL; nothing downstream touches the bytes.
func uploadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	claims, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		response.Error(w, http.StatusBadRequest, "File too large or malformed form", err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Missing 'file' form field", err.Error())
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedExtensions[ext] {
		response.Error(w, http.StatusBadRequest, "Unsupported file type", ext)
		return
	}

	objectName := fmt.Sprintf("%s/%s%s", claims.UserID, uuid.New().String(), ext)
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	_, err = storage.PutObject(ctx, bucketName, objectName, file, header.Size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to store file", err.Error())
		return
	}

	fileURL := fmt.Sprintf("%s/%s/%s", publicEndpoint, bucketName, objectName)
	log.Printf("[OK] Media uploaded - User: %s, Object: %s", claims.UserID, objectName)

	response.Success(w, http.StatusCreated, "File uploaded", map[string]interface{}{
		"url": fileURL,
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "UP",
		"service": "media-service",
		"bucket":  bucketName,
	})
}
