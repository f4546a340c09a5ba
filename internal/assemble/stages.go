package assemble

// Pipeline stages in execution order. The assembler reports these as it
// moves through a job; the fixed entry and upload percents anchor the
// progress range so computed values always land between them.
const (
	StageStarting            = "starting"
	StageDownloadingImages   = "downloading_images"
	StageDownloadingAudio    = "downloading_audio"
	StageDownloadingBGM      = "downloading_bgm"
	StageBuildingMotionClips = "building_motion_clips"
	StageJoiningClips        = "joining_clips"
	StageMixingAudio         = "mixing_audio"
	StageMergingAudioVideo   = "merging_audio_video"
	StageBurningCaptions     = "burning_captions"
	StageFinalizing          = "finalizing"
	StageUploadingVideo      = "uploading_video"
	StageCompleted           = "completed"
	StageFailed              = "failed"
)

const (
	startingPercent  = 1
	uploadingPercent = 95
	completedPercent = 100
)

// Stages returns the pipeline stages in execution order, excluding the
// terminal markers.
func Stages() []string {
	return []string{
		StageStarting,
		StageDownloadingImages,
		StageDownloadingAudio,
		StageDownloadingBGM,
		StageBuildingMotionClips,
		StageJoiningClips,
		StageMixingAudio,
		StageMergingAudioVideo,
		StageBurningCaptions,
		StageFinalizing,
		StageUploadingVideo,
	}
}

// StagePercent returns the fixed progress value for stages that pin one,
// and ok=false for stages whose progress is computed from work done.
func StagePercent(stage string) (int, bool) {
	switch stage {
	case StageStarting:
		return startingPercent, true
	case StageUploadingVideo:
		return uploadingPercent, true
	case StageCompleted:
		return completedPercent, true
	default:
		return 0, false
	}
}
