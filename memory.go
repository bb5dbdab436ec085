package georaster

import (
	"runtime"
)

// releaseMemory drops every decoded raster in cache and gives the garbage
// collector a chance to reclaim them.
func releaseMemory(cache *RasterCache) {
	cache.Clear()
	runtime.GC()
	runtime.Gosched()
}

// measureHeap calls f and returns the growth of the heap while it ran.
func measureHeap(f func() error) (int64, error) {
	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	err := f()
	runtime.ReadMemStats(&after)
	return max(int64(after.HeapAlloc)-int64(before.HeapAlloc), 0), err
}

// rastersSize returns the total size of rasters.
func rastersSize(rasters []DataRaster) int64 {
	var size int64
	for _, raster := range rasters {
		size += raster.SizeInBytes()
	}
	return size
}
