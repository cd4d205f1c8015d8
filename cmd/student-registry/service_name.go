package main

import (
	"os"
	"regexp"
)

const defaultServiceName = "student-registry"

var (
	// <deployment>-<hash ReplicaSet>-<суффикс пода>
	deploymentPodRe = regexp.MustCompile(`^(.+)-[a-z0-9]{6,10}-[a-z0-9]{5}$`)
	// <statefulset>-<ordinal>
	statefulSetPodRe = regexp.MustCompile(`^(.+)-\d+$`)
)

// serviceName — имя вершины графа topologymetrics. В Kubernetes берётся
// имя владельца пода из hostname, иначе "student-registry".
func serviceName() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") == "" {
		return defaultServiceName
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		return defaultServiceName
	}
	return parseOwnerName(host)
}

// parseOwnerName извлекает имя Deployment или StatefulSet из имени пода.
// Нераспознанное имя возвращается без изменений.
func parseOwnerName(hostname string) string {
	if m := deploymentPodRe.FindStringSubmatch(hostname); m != nil {
		return m[1]
	}
	if m := statefulSetPodRe.FindStringSubmatch(hostname); m != nil {
		return m[1]
	}
	return hostname
}
